package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

type fakeDevice struct {
	mu     sync.Mutex
	origin string
	hosts  []string
}

func (d *fakeDevice) Get(context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.origin
}

func (d *fakeDevice) SetHost(_ context.Context, ip string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts = append(d.hosts, ip)
	d.origin = "http://" + ip
	return nil
}

type upstream struct {
	*httptest.Server
	hits atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func newActiveWorker(t *testing.T, origin string, opts Options) (*Worker, *MemoryStorage) {
	t.Helper()
	st := NewMemoryStorage()
	w := New(st, nil, &fakeDevice{origin: origin}, opts)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	return w, st
}

func get(w http.Handler, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	return rec
}

func TestAPIServedFromCacheWhenOffline(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uptime":42}`))
	})
	w, _ := newActiveWorker(t, up.URL, Options{})

	rec := get(w, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uptime":42}`, rec.Body.String())

	up.Close()
	rec = get(w, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uptime":42}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAPIOfflineWithoutCache(t *testing.T) {
	up := newUpstream(t, func(http.ResponseWriter, *http.Request) {})
	w, _ := newActiveWorker(t, up.URL, Options{})
	up.Close()

	rec := get(w, "/api/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Offline - cached data not available","offline":true}`, rec.Body.String())
}

func TestAPINotOKIsNotCached(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	w, st := newActiveWorker(t, up.URL, Options{})

	rec := get(w, "/api/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, found, err := st.Match(context.Background(), up.URL+"/api/stats")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAPITimeoutFallsBackToCache(t *testing.T) {
	var slow atomic.Bool
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"app":"Time"}`))
	})
	w, _ := newActiveWorker(t, up.URL, Options{APITimeout: 50 * time.Millisecond})

	require.Equal(t, http.StatusOK, get(w, "/api/stats", "").Code)
	slow.Store(true)

	start := time.Now()
	rec := get(w, "/api/stats", "")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"app":"Time"}`, rec.Body.String())
}

func TestStaticCacheFirst(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{}"))
	})
	w, _ := newActiveWorker(t, up.URL, Options{})

	require.Equal(t, "body{}", get(w, "/css/app.css", "").Body.String())
	require.Equal(t, "body{}", get(w, "/css/app.css", "").Body.String())
	assert.Equal(t, int32(1), up.hits.Load())
}

func TestStaticMissOffline(t *testing.T) {
	up := newUpstream(t, func(http.ResponseWriter, *http.Request) {})
	w, _ := newActiveWorker(t, up.URL, Options{})
	up.Close()

	rec := get(w, "/css/app.css", "")
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "Network error", rec.Body.String())

	rec = get(w, "/css/app.css", "text/html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "offline")
}

func TestHTMLOfflinePage(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>dashboard</html>"))
	})
	w, _ := newActiveWorker(t, up.URL, Options{})

	assert.Equal(t, "<html>dashboard</html>", get(w, "/pages/dashboard.html", "text/html").Body.String())
	up.Close()
	assert.Equal(t, "<html>dashboard</html>", get(w, "/pages/dashboard.html", "text/html").Body.String())

	rec := get(w, "/pages/other.html", "text/html,application/xhtml+xml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AWTRIX3 is offline")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestOtherSizeCeiling(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big.bin" {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
			return
		}
		_, _ = w.Write([]byte("small"))
	})
	w, st := newActiveWorker(t, up.URL, Options{MaxEntryBytes: 16})
	ctx := context.Background()

	get(w, "/big.bin", "")
	get(w, "/manifest.json", "")

	_, found, err := st.Match(ctx, up.URL+"/big.bin")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = st.Match(ctx, up.URL+"/manifest.json")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInstallAndActivatePurgesOldCaches(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	st := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "awtrix3-static-v1.0.0", Entry{URL: "old"}))
	require.NoError(t, st.Put(ctx, "awtrix3-dynamic-v1.0.0", Entry{URL: "old"}))

	w := New(st, nil, &fakeDevice{origin: up.URL}, Options{
		Precache:             []string{"/", "/index.html", "/css/app.css"},
		SkipWaitingOnInstall: true,
	})
	assert.Equal(t, StateNew, w.State())
	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateActivated, w.State())

	names, err := st.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"awtrix3-static-v2.0.0"}, names)
	assert.Equal(t, int32(3), up.hits.Load())

	_, found, err := st.Match(ctx, up.URL+"/index.html")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInstallFailureWaits(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	st := NewMemoryStorage()
	w := New(st, nil, &fakeDevice{origin: up.URL}, Options{
		Precache:             []string{"/index.html", "/missing.js"},
		SkipWaitingOnInstall: true,
	})

	assert.Error(t, w.Install(context.Background()))
	assert.Equal(t, StateInstalled, w.State())
	names, _ := st.Names(context.Background())
	assert.Empty(t, names)
}

func TestPassThroughBeforeActivation(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	st := NewMemoryStorage()
	w := New(st, nil, &fakeDevice{origin: up.URL}, Options{})

	assert.Equal(t, http.StatusOK, get(w, "/api/stats", "").Code)
	names, _ := st.Names(context.Background())
	assert.Empty(t, names)
}

func TestNonGETForwarded(t *testing.T) {
	var (
		mu                 sync.Mutex
		gotMethod, gotBody string
	)
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		mu.Lock()
		gotMethod, gotBody = r.Method, buf.String()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	w, st := newActiveWorker(t, up.URL, Options{})

	req := httptest.NewRequest(http.MethodDelete, "/edit", strings.NewReader("path=%2Fa.gif"))
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "path=%2Fa.gif", gotBody)
	names, _ := st.Names(context.Background())
	assert.Empty(t, names)
}

func TestAssetOriginRouting(t *testing.T) {
	device := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("device"))
	})
	assets := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("assets"))
	})
	w, _ := newActiveWorker(t, device.URL, Options{AssetOrigin: assets.URL + "/"})

	assert.Equal(t, "device", get(w, "/api/stats", "").Body.String())
	assert.Equal(t, "device", get(w, "/list?dir=/ICONS", "").Body.String())
	assert.Equal(t, "assets", get(w, "/js/app.js", "").Body.String())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassAPI, Classify("/api/stats", "text/html"))
	assert.Equal(t, ClassStatic, Classify("/ICONS/a.gif", ""))
	assert.Equal(t, ClassStatic, Classify("/fonts/a.woff2", ""))
	assert.Equal(t, ClassStatic, Classify("/icons/x", ""))
	assert.Equal(t, ClassHTML, Classify("/pages/dashboard.html", "text/html"))
	assert.Equal(t, ClassOther, Classify("/manifest.json", "application/json"))
}

func postControl(t *testing.T, w http.Handler, msg protocol.ControlMessage) (int, protocol.ControlReply) {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, ControlPath, bytes.NewReader(body)))
	var reply protocol.ControlReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	return rec.Code, reply
}

func TestControlMessages(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	dev := &fakeDevice{origin: up.URL}
	st := NewMemoryStorage()
	w := New(st, nil, dev, Options{Precache: []string{"/"}})
	ctx := context.Background()
	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())

	code, reply := postControl(t, w, protocol.ControlMessage{Type: protocol.ControlSkipWaiting})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, reply.OK)
	assert.Equal(t, StateActivated, w.State())

	_, reply = postControl(t, w, protocol.ControlMessage{Type: protocol.ControlGetVersion})
	assert.Equal(t, "awtrix3-v2.0.0", reply.Version)

	_, reply = postControl(t, w, protocol.ControlMessage{Type: protocol.ControlClearCache})
	assert.True(t, reply.OK)
	names, _ := st.Names(ctx)
	assert.Empty(t, names)

	code, reply = postControl(t, w, protocol.ControlMessage{Type: protocol.ControlSetDeviceIP, IP: "999.1.1.1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, reply.OK)
	assert.Empty(t, dev.hosts)

	code, _ = postControl(t, w, protocol.ControlMessage{Type: protocol.ControlSetDeviceIP, IP: "10.0.0.7"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"10.0.0.7"}, dev.hosts)

	code, _ = postControl(t, w, protocol.ControlMessage{Type: "NOPE"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := NewRedisStorage(client)
	ctx := context.Background()

	e := Entry{URL: "http://d/api/stats", Status: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"a":1}`)}
	require.NoError(t, st.Put(ctx, "awtrix3-dynamic-v2.0.0", e))
	require.NoError(t, st.Put(ctx, "awtrix3-static-v1.0.0", Entry{URL: "http://d/x.css", Status: 200}))

	got, found, err := st.Match(ctx, "http://d/api/stats")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, e.Body, got.Body)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))

	names, err := st.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"awtrix3-dynamic-v2.0.0", "awtrix3-static-v1.0.0"}, names)

	require.NoError(t, st.Delete(ctx, "awtrix3-static-v1.0.0"))
	_, found, err = st.Match(ctx, "http://d/x.css")
	require.NoError(t, err)
	assert.False(t, found)

	w := New(st, nil, &fakeDevice{origin: "http://d"}, Options{})
	require.NoError(t, st.Put(ctx, "awtrix3-static-v0.9.0", Entry{URL: "old"}))
	w.setState(StateInstalled)
	require.NoError(t, w.SkipWaiting(ctx))
	names, err = st.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"awtrix3-dynamic-v2.0.0"}, names)
}
