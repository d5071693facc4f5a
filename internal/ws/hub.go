// Package ws is the host side of the message bridge. Embedded panels connect
// over a websocket, and the hub performs each request against the device.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/matrixpanel/internal/protocol"
	"github.com/HsiangNianian/matrixpanel/internal/store"
	"github.com/HsiangNianian/matrixpanel/internal/transport"
)

const processedTTL = 24 * time.Hour

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Doer performs one device request (httpclient.Client).
type Doer interface {
	Do(ctx context.Context, d protocol.Descriptor) (*http.Response, error)
}

// OriginSource yields the device origin (baseurl.Resolver).
type OriginSource interface {
	Get(ctx context.Context) string
}

type Hub struct {
	store     store.Store
	doer      Doer
	origin    OriginSource
	authToken string

	upgrader websocket.Upgrader

	panelMu sync.RWMutex
	panels  map[*clientConn]struct{}

	wg sync.WaitGroup
}

// NewHub builds a relay. allowedOrigin "*" accepts any page origin.
func NewHub(st store.Store, doer Doer, origin OriginSource, authToken, allowedOrigin string) *Hub {
	return &Hub{
		store:     st,
		doer:      doer,
		origin:    origin,
		authToken: authToken,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return originAllowed(allowedOrigin, r.Header.Get("Origin")) },
		},
		panels: make(map[*clientConn]struct{}),
	}
}

func originAllowed(allowed, origin string) bool {
	if allowed == "" || allowed == "*" || origin == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin)
}

func (h *Hub) HandleBridge(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
		log.Printf("panel unauthorized: remote=%s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade panel ws failed: %v", err)
		return
	}
	client := &clientConn{conn: conn}

	h.panelMu.Lock()
	h.panels[client] = struct{}{}
	panelCount := len(h.panels)
	h.panelMu.Unlock()

	log.Printf("panel connected: remote=%s active_panels=%d", r.RemoteAddr, panelCount)
	h.readPanel(r.Context(), client)
}

// PanelCount is the number of connected panels.
func (h *Hub) PanelCount() int {
	h.panelMu.RLock()
	defer h.panelMu.RUnlock()
	return len(h.panels)
}

func (h *Hub) readPanel(ctx context.Context, client *clientConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		h.panelMu.Lock()
		delete(h.panels, client)
		panelCount := len(h.panels)
		h.panelMu.Unlock()
		_ = client.conn.Close()
		log.Printf("panel disconnected: active_panels=%d", panelCount)
	}()

	for {
		var req protocol.BridgeRequest
		if err := client.conn.ReadJSON(&req); err != nil {
			log.Printf("recv panel->relay failed: %v", err)
			return
		}
		h.logEvent("recv panel->relay", req)

		// Requests run concurrently; replies carry the id so the panel can
		// match them in any order.
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			resp := h.execute(ctx, req)
			if err := client.WriteJSON(resp); err != nil {
				log.Printf("send relay->panel failed: id=%s err=%v", resp.ID, err)
				return
			}
			log.Printf("send relay->panel: id=%s success=%t", resp.ID, resp.Success)
		}()
	}
}

// Wait blocks until in-flight requests have been answered.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) execute(ctx context.Context, req protocol.BridgeRequest) protocol.BridgeResponse {
	if req.ID == "" {
		return failure(req.ID, "missing id")
	}

	fresh, err := h.store.MarkProcessedIfNew(ctx, req.ID, processedTTL)
	if err != nil {
		return failure(req.ID, err.Error())
	}
	if !fresh {
		log.Printf("duplicate request ignored: id=%s", req.ID)
		return failure(req.ID, "duplicate request")
	}

	d := h.descriptor(ctx, req)
	resp, err := h.doer.Do(ctx, d)
	if err != nil {
		log.Printf("device request failed: id=%s method=%s url=%s err=%v", req.ID, d.MethodOrGet(), d.URL, err)
		return failure(req.ID, err.Error())
	}
	data, err := transport.Normalize(resp, d)
	if err != nil {
		return failure(req.ID, err.Error())
	}
	return protocol.BridgeResponse{ID: req.ID, Success: true, Data: data}
}

// descriptor resolves a relative bridged URL against the device origin.
// Bodies that are not JSON are sent as form data.
func (h *Hub) descriptor(ctx context.Context, req protocol.BridgeRequest) protocol.Descriptor {
	target := req.URL
	if u, err := url.Parse(req.URL); err != nil || !u.IsAbs() {
		target = h.origin.Get(ctx) + req.URL
	}

	d := protocol.Descriptor{URL: target, Method: req.Method, IsImage: req.IsImage}
	if req.Body != "" {
		d.Body = []byte(req.Body)
		d.Header = http.Header{}
		if json.Valid(d.Body) {
			d.Header.Set("Content-Type", "application/json")
		} else {
			d.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	return d
}

func failure(id, msg string) protocol.BridgeResponse {
	return protocol.BridgeResponse{ID: id, Success: false, Error: msg}
}

func (h *Hub) logEvent(prefix string, req protocol.BridgeRequest) {
	log.Printf("%s: id=%s method=%s url=%s is_image=%t", prefix, req.ID, req.Method, req.URL, req.IsImage)
}
