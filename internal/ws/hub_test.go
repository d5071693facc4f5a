package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/bridge"
	"github.com/HsiangNianian/matrixpanel/internal/httpclient"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
	"github.com/HsiangNianian/matrixpanel/internal/store"
)

type staticOrigin string

func (o staticOrigin) Get(context.Context) string { return string(o) }

type recorded struct {
	method      string
	contentType string
	body        string
}

type device struct {
	*httptest.Server
	mu       sync.Mutex
	last     recorded
	slowHits atomic.Int32
}

func newDevice(t *testing.T) *device {
	t.Helper()
	d := &device{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"app":"Time","uptime":5}`))
	})
	mux.HandleFunc("/api/slow", func(w http.ResponseWriter, _ *http.Request) {
		d.slowHits.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slow":true}`))
	})
	mux.HandleFunc("/api/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ICONS/a.gif", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.last = recorded{method: r.Method, contentType: r.Header.Get("Content-Type"), body: string(body)}
		d.mu.Unlock()
		_, _ = w.Write([]byte("OK"))
	})
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

func (d *device) lastRequest() recorded {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func newRelay(t *testing.T, dev *device, token, allowedOrigin string) (*Hub, string) {
	t.Helper()
	hub := NewHub(store.NewMemoryStore(), httpclient.New(httpclient.WithTimeout(2*time.Second)), staticOrigin(dev.URL), token, allowedOrigin)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleBridge))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialBridge(t *testing.T, wsURL, token string) *bridge.Bridge {
	t.Helper()
	b := bridge.New(nil, 2*time.Second)
	parent, err := bridge.Dial(context.Background(), wsURL, bridge.DialOptions{TargetOrigin: "*", AuthToken: token}, b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = parent.Close() })
	return b
}

func TestRelayEndToEnd(t *testing.T) {
	dev := newDevice(t)
	_, wsURL := newRelay(t, dev, "tok", "*")
	b := dialBridge(t, wsURL, "tok")
	ctx := context.Background()

	data, err := b.Send(ctx, protocol.BridgeRequest{URL: "/api/stats"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"app":"Time","uptime":5}`, string(data))

	data, err = b.Send(ctx, protocol.BridgeRequest{URL: "/api/nextapp", Method: http.MethodPost})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))

	data, err = b.Send(ctx, protocol.BridgeRequest{URL: "/ICONS/a.gif", IsImage: true})
	require.NoError(t, err)
	var dataURL string
	require.NoError(t, json.Unmarshal(data, &dataURL))
	assert.Equal(t, "data:image/gif;base64,R0lGODlh", dataURL)

	_, err = b.Send(ctx, protocol.BridgeRequest{URL: "/edit", Method: http.MethodDelete, Body: "path=%2FICONS%2Fa.gif"})
	require.NoError(t, err)
	last := dev.lastRequest()
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "application/x-www-form-urlencoded", last.contentType)
	assert.Equal(t, "path=%2FICONS%2Fa.gif", last.body)

	_, err = b.Send(ctx, protocol.BridgeRequest{URL: "/api/wifi", Method: http.MethodPost, Body: `{"ssid":"x"}`})
	require.NoError(t, err)
	assert.Equal(t, "application/json", dev.lastRequest().contentType)
}

func TestRelayDeviceErrorReported(t *testing.T) {
	dev := newDevice(t)
	_, wsURL := newRelay(t, dev, "", "*")
	b := dialBridge(t, wsURL, "")

	_, err := b.Send(context.Background(), protocol.BridgeRequest{URL: "/api/broken"})
	var remote *apierr.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Message, "HTTP 500")
}

func TestRelayUnauthorized(t *testing.T) {
	dev := newDevice(t)
	_, wsURL := newRelay(t, dev, "tok", "*")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRelayOriginCheck(t *testing.T) {
	dev := newDevice(t)
	_, wsURL := newRelay(t, dev, "", "http://panel.example")

	_, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	assert.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://panel.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestRelayDuplicateAndConcurrent(t *testing.T) {
	dev := newDevice(t)
	hub, wsURL := newRelay(t, dev, "", "*")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(protocol.BridgeRequest{ID: "slow", URL: "/api/slow", Method: http.MethodGet}))
	require.NoError(t, conn.WriteJSON(protocol.BridgeRequest{ID: "fast", URL: "/api/stats", Method: http.MethodGet}))

	var first, second protocol.BridgeResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "fast", first.ID)
	assert.Equal(t, "slow", second.ID)
	assert.True(t, second.Success)

	require.NoError(t, conn.WriteJSON(protocol.BridgeRequest{ID: "fast", URL: "/api/stats", Method: http.MethodGet}))
	var dup protocol.BridgeResponse
	require.NoError(t, conn.ReadJSON(&dup))
	assert.Equal(t, "fast", dup.ID)
	assert.False(t, dup.Success)
	assert.Equal(t, "duplicate request", dup.Error)

	assert.Equal(t, 1, hub.PanelCount())
}

func TestRelaySameIDInFlightRunsOnce(t *testing.T) {
	dev := newDevice(t)
	_, wsURL := newRelay(t, dev, "", "*")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	const frames = 4
	for i := 0; i < frames; i++ {
		require.NoError(t, conn.WriteJSON(protocol.BridgeRequest{ID: "same", URL: "/api/slow", Method: http.MethodGet}))
	}

	var succeeded, duplicates int
	for i := 0; i < frames; i++ {
		var resp protocol.BridgeResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Success {
			succeeded++
		} else if resp.Error == "duplicate request" {
			duplicates++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, frames-1, duplicates)
	assert.Equal(t, int32(1), dev.slowHits.Load())
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed("*", "http://any"))
	assert.True(t, originAllowed("http://a.example", ""))
	assert.True(t, originAllowed("http://a.example/", "http://a.example"))
	assert.False(t, originAllowed("http://a.example", "http://b.example"))
}
