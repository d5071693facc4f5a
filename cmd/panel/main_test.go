package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/store"
)

func writeConfig(t *testing.T, deviceURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.hujson")
	content := fmt.Sprintf(`{
	// device under test
	"device": {"default_ip": %q},
	"store": {"file_path": %q},
	"http": {"timeout_seconds": 2, "retry_attempts": 1},
}`, strings.TrimPrefix(deviceURL, "http://"), filepath.Join(dir, "state.json"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"app":"Clock","usedRam":1,"totalRam":4}`))
	}))
	defer dev.Close()

	out, err := run(t, "--config", writeConfig(t, dev.URL), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"currentApp": "Clock"`)
	assert.Contains(t, out, `"percentage": 25`)
}

func TestWiFiCommandValidatesFirst(t *testing.T) {
	var hits atomic.Int32
	dev := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer dev.Close()

	_, err := run(t, "--config", writeConfig(t, dev.URL), "wifi", "--ssid", "home", "--password", "1234")
	var valErr *apierr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.True(t, valErr.Field("password"))
	assert.Equal(t, int32(0), hits.Load())
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"NET_STATIC=true", "MQTT_PORT=1883", "NET_IP=10.0.0.2", "MQTT_HOST="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"NET_STATIC": true,
		"MQTT_PORT":  int64(1883),
		"NET_IP":     "10.0.0.2",
		"MQTT_HOST":  "",
	}, got)

	_, err = parseAssignments([]string{"nope"})
	assert.Error(t, err)
}

func TestPrefsCommandPersists(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	out, err := run(t, "--config", cfgPath, "prefs", "--theme", "dark", "--animations", "off")
	require.NoError(t, err)
	assert.Contains(t, out, `"theme": "dark"`)

	st, err := store.OpenFileStore(filepath.Join(filepath.Dir(cfgPath), "state.json"))
	require.NoError(t, err)
	defer st.Close()

	prefs, err := st.Preferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.Preferences{Theme: "dark", LastPage: "dashboard", Animations: false}, prefs)
	theme, err := st.Theme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	_, err = run(t, "--config", cfgPath, "prefs", "--theme", "purple")
	assert.Error(t, err)
}
