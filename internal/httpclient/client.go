// Package httpclient is the direct-mode path to the device: one deadline per
// call, linear retry on transport failures, typed errors.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Client struct {
	http      *http.Client
	timeout   time.Duration
	attempts  int
	baseDelay time.Duration
	wait      WaitFunc
	verbose   bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if baseDelay >= 0 {
			c.baseDelay = baseDelay
		}
	}
}

func WithWait(w WaitFunc) Option {
	return func(c *Client) { c.wait = w }
}

func WithVerbose(v bool) Option {
	return func(c *Client) { c.verbose = v }
}

func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		attempts:  DefaultAttempts,
		baseDelay: DefaultBaseDelay,
		wait:      sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends d and returns the response with an open body on 2xx. The
// timeout covers every attempt and the wait between them; the body must be
// read before the returned response is abandoned.
func (c *Client) Do(ctx context.Context, d protocol.Descriptor) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, err := c.doWithRetry(ctx, d)
	if err != nil {
		cancel()
		return nil, c.classify(ctx, d.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &apierr.HTTPError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) doWithRetry(ctx context.Context, d protocol.Descriptor) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		req, err := newRequest(ctx, d)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || attempt >= c.attempts {
			return nil, err
		}
		delay := time.Duration(attempt) * c.baseDelay
		if c.verbose {
			log.Printf("[http] retry: url=%s attempt=%d delay=%s err=%v", d.URL, attempt, delay, err)
		}
		if werr := c.wait(ctx, delay); werr != nil {
			return nil, werr
		}
	}
}

func newRequest(ctx context.Context, d protocol.Descriptor) (*http.Request, error) {
	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.MethodOrGet(), d.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (c *Client) classify(ctx context.Context, rawURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &apierr.TimeoutError{Op: "request " + rawURL}
	}
	if isNetworkFailure(err) {
		return &apierr.NetworkError{URL: rawURL, Err: err}
	}
	return err
}

func isNetworkFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
