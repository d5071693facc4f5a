package bridge

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

// WSParent is the websocket link to the host relay. Responses read from the
// link are handed to the bridge.
type WSParent struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	bridge *Bridge
	done   chan struct{}
}

type DialOptions struct {
	// TargetOrigin is "*" or the origin the relay must be served from.
	TargetOrigin string
	AuthToken    string
}

// Dial connects to the relay at parentURL, attaches the link to b and starts
// reading responses.
func Dial(ctx context.Context, parentURL string, opts DialOptions, b *Bridge) (*WSParent, error) {
	if err := checkTargetOrigin(parentURL, opts.TargetOrigin); err != nil {
		return nil, err
	}

	header := http.Header{}
	if opts.AuthToken != "" {
		header.Set("Authorization", "Bearer "+opts.AuthToken)
	}
	log.Printf("dial relay: url=%s", parentURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, parentURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial relay failed: %w", err)
	}
	log.Printf("relay connected: url=%s", parentURL)

	p := &WSParent{conn: conn, bridge: b, done: make(chan struct{})}
	b.SetPoster(p)
	go p.read()
	return p, nil
}

func (p *WSParent) Post(ctx context.Context, req protocol.BridgeRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(deadline)
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	return p.conn.WriteJSON(req)
}

func (p *WSParent) read() {
	defer func() {
		close(p.done)
		_ = p.conn.Close()
		log.Printf("relay disconnected")
	}()

	for {
		var resp protocol.BridgeResponse
		if err := p.conn.ReadJSON(&resp); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("recv relay->panel failed: %v", err)
			}
			return
		}
		if !p.bridge.Deliver(resp) {
			p.bridge.debugf("ignore unmatched message: id=%s", resp.ID)
		}
	}
}

// Done is closed when the read loop exits.
func (p *WSParent) Done() <-chan struct{} {
	return p.done
}

func (p *WSParent) Close() error {
	p.mu.Lock()
	err := p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.mu.Unlock()
	if err != nil {
		return p.conn.Close()
	}
	select {
	case <-p.done:
	case <-time.After(time.Second):
		_ = p.conn.Close()
	}
	return nil
}

// checkTargetOrigin refuses to post to a relay outside the trusted origin.
// "*" accepts any relay.
func checkTargetOrigin(parentURL, target string) error {
	if target == "" || target == "*" {
		return nil
	}
	pu, err := url.Parse(parentURL)
	if err != nil {
		return fmt.Errorf("invalid relay url: %w", err)
	}
	tu, err := url.Parse(target)
	if err != nil || tu.Host == "" {
		return fmt.Errorf("invalid target origin %q", target)
	}
	if pu.Host != tu.Host {
		return fmt.Errorf("relay %s does not match target origin %s", pu.Host, target)
	}
	return nil
}
