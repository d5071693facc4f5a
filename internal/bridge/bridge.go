// Package bridge correlates calls posted to the host relay with the answers
// that come back on the same link. It is only used in embedded mode.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

const DefaultTimeout = 10 * time.Second

// Poster hands a request to the parent side.
type Poster interface {
	Post(ctx context.Context, req protocol.BridgeRequest) error
}

type outcome struct {
	data json.RawMessage
	err  error
}

type pendingCall struct {
	id        string
	createdAt time.Time
	reply     chan outcome
}

type Bridge struct {
	poster  Poster
	timeout time.Duration
	verbose atomic.Bool

	mu      sync.Mutex
	pending map[string]*pendingCall
}

func New(poster Poster, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		poster:  poster,
		timeout: timeout,
		pending: make(map[string]*pendingCall),
	}
}

func (b *Bridge) SetVerbose(v bool) { b.verbose.Store(v) }

// SetPoster swaps the parent link, e.g. after a reconnect.
func (b *Bridge) SetPoster(p Poster) {
	b.mu.Lock()
	b.poster = p
	b.mu.Unlock()
}

// NewID returns msg_<unix millis>_<9 random chars>.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), suffix)
}

// Send posts req and waits for the matching response. Exactly one of data or
// error is returned; a silent parent yields *apierr.TimeoutError.
func (b *Bridge) Send(ctx context.Context, req protocol.BridgeRequest) (json.RawMessage, error) {
	req.ID = NewID()
	if req.Method == "" {
		req.Method = "GET"
	}
	call := &pendingCall{id: req.ID, createdAt: time.Now(), reply: make(chan outcome, 1)}

	b.mu.Lock()
	b.pending[call.id] = call
	poster := b.poster
	b.mu.Unlock()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	if poster == nil {
		b.remove(call.id)
		return nil, &apierr.NetworkError{URL: req.URL, Err: fmt.Errorf("no parent link")}
	}
	if err := poster.Post(ctx, req); err != nil {
		b.remove(call.id)
		return nil, &apierr.NetworkError{URL: req.URL, Err: err}
	}
	b.debugf("post: id=%s method=%s url=%s", req.ID, req.Method, req.URL)

	select {
	case out := <-call.reply:
		return out.data, out.err
	case <-timer.C:
		if b.remove(call.id) {
			b.debugf("timeout: id=%s url=%s waited=%s", call.id, req.URL, time.Since(call.createdAt))
			return nil, &apierr.TimeoutError{Op: "bridge " + req.URL}
		}
		// Deliver won the race after the timer fired.
		out := <-call.reply
		return out.data, out.err
	case <-ctx.Done():
		if b.remove(call.id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &apierr.TimeoutError{Op: "bridge " + req.URL}
			}
			return nil, ctx.Err()
		}
		out := <-call.reply
		return out.data, out.err
	}
}

// Deliver resolves the pending call with resp.ID. It returns false when no
// call is waiting for that id; such messages are dropped silently.
func (b *Bridge) Deliver(resp protocol.BridgeResponse) bool {
	b.mu.Lock()
	call, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	if resp.Success {
		call.reply <- outcome{data: resp.Data}
	} else {
		call.reply <- outcome{err: &apierr.RemoteError{Message: resp.Error}}
	}
	b.debugf("deliver: id=%s success=%t rtt=%s", resp.ID, resp.Success, time.Since(call.createdAt))
	return true
}

// Pending returns the number of calls waiting for an answer.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return false
	}
	delete(b.pending, id)
	return true
}

func (b *Bridge) debugf(format string, args ...any) {
	if b.verbose.Load() {
		log.Printf("[bridge] "+format, args...)
	}
}
