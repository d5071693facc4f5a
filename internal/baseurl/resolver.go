// Package baseurl resolves the device origin every call is addressed to.
package baseurl

import (
	"context"
	"log"
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/store"
)

var ipv4Pattern = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// ValidIPv4 reports whether s is a dotted-quad IPv4 address.
func ValidIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// validHost accepts an IPv4 address with an optional port.
func validHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return ValidIPv4(host)
}

type Options struct {
	// Embedded is set when the panel runs behind a host relay.
	Embedded bool
	// Referrer is the URL of the embedding host, if known.
	Referrer string
	// FallbackHost is used when no valid host is stored.
	FallbackHost string
	Verbose      bool
}

// Resolver caches the resolved origin for the life of the process.
// Writes go through Set only.
type Resolver struct {
	store store.Store
	opts  Options

	mu      sync.RWMutex
	baseURL string
}

func New(st store.Store, opts Options) *Resolver {
	return &Resolver{store: st, opts: opts}
}

// Get returns the device origin, resolving it on first use: embedded
// referrer, then stored host, then the fallback host.
func (r *Resolver) Get(ctx context.Context) string {
	r.mu.RLock()
	cached := r.baseURL
	r.mu.RUnlock()
	if cached != "" {
		return cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.baseURL != "" {
		return r.baseURL
	}
	r.baseURL = r.resolve(ctx)
	r.debugf("base url set to: %s", r.baseURL)
	return r.baseURL
}

func (r *Resolver) resolve(ctx context.Context) string {
	if r.opts.Embedded && r.opts.Referrer != "" {
		if u, err := url.Parse(r.opts.Referrer); err == nil && u.Scheme != "" && u.Host != "" {
			r.debugf("base url detected from referrer: %s", r.opts.Referrer)
			return u.Scheme + "://" + u.Host
		} else if err != nil {
			log.Printf("[baseurl] parse referrer failed: referrer=%s err=%v", r.opts.Referrer, err)
		}
	}

	host, err := r.store.DeviceHost(ctx)
	if err != nil {
		log.Printf("[baseurl] read stored host failed: %v", err)
	}
	if host == "" {
		host = r.opts.FallbackHost
	} else if !validHost(host) {
		r.debugf("invalid stored host %q, using default %s", host, r.opts.FallbackHost)
		host = r.opts.FallbackHost
	}
	return "http://" + host
}

// Set replaces the origin and persists its host. A malformed origin is
// rejected without touching the current value.
func (r *Resolver) Set(ctx context.Context, origin string) error {
	u, err := Parse(origin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.baseURL = strings.TrimRight(origin, "/")
	r.mu.Unlock()

	if err := r.store.SetDeviceHost(ctx, u.Host); err != nil {
		log.Printf("[baseurl] save host failed: host=%s err=%v", u.Host, err)
	}
	return nil
}

// SetHost is Set for a bare IP address.
func (r *Resolver) SetHost(ctx context.Context, ip string) error {
	if !ValidIPv4(ip) {
		return &apierr.InvalidURLError{URL: ip}
	}
	return r.Set(ctx, "http://"+ip)
}

// Reset drops the cached origin so the next Get resolves again.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.baseURL = ""
	r.mu.Unlock()
}

// Parse accepts absolute http(s) URLs only.
func Parse(origin string) (*url.URL, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, &apierr.InvalidURLError{URL: origin, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &apierr.InvalidURLError{URL: origin}
	}
	return u, nil
}

// Relative strips origin from rawURL, leaving a device-relative path.
func Relative(rawURL, origin string) string {
	if origin != "" && strings.HasPrefix(rawURL, origin) {
		rel := strings.TrimPrefix(rawURL, origin)
		if rel == "" {
			return "/"
		}
		return rel
	}
	return rawURL
}

func (r *Resolver) debugf(format string, args ...any) {
	if r.opts.Verbose {
		log.Printf("[baseurl] "+format, args...)
	}
}
