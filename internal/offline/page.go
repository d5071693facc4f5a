package offline

const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>AWTRIX3 - Offline</title>
<style>
body {
	font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
	margin: 0;
	padding: 20px;
	background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
	min-height: 100vh;
	display: flex;
	align-items: center;
	justify-content: center;
	color: white;
	text-align: center;
}
.container {
	background: rgba(255, 255, 255, 0.1);
	padding: 40px;
	border-radius: 20px;
	border: 1px solid rgba(255, 255, 255, 0.2);
	max-width: 500px;
}
.retry-btn {
	background: rgba(255, 255, 255, 0.2);
	border: 1px solid rgba(255, 255, 255, 0.3);
	color: white;
	padding: 12px 24px;
	border-radius: 10px;
	cursor: pointer;
	margin-top: 20px;
}
</style>
</head>
<body>
<div class="container">
<h1>AWTRIX3 is offline</h1>
<p>No connection available.</p>
<p>Please check your connection and try again.</p>
<button class="retry-btn" onclick="window.location.reload()">Retry</button>
</div>
</body>
</html>
`
