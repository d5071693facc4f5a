// Package offline is a caching proxy that keeps the panel usable when the
// device or the asset host cannot be reached.
package offline

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	}
	return "new"
}

// Class is how a request is cached.
type Class string

const (
	ClassAPI    Class = "api"
	ClassStatic Class = "static"
	ClassHTML   Class = "html"
	ClassOther  Class = "other"
)

var (
	imagePattern  = regexp.MustCompile(`\.(?:png|jpg|jpeg|svg|gif|webp)$`)
	fontPattern   = regexp.MustCompile(`\.(?:woff|woff2|ttf|eot)$`)
	stylePattern  = regexp.MustCompile(`\.css$`)
	scriptPattern = regexp.MustCompile(`\.js$`)
)

const offlineJSON = `{"error":"Offline - cached data not available","offline":true}`

// DeviceTarget is the resolved device origin (baseurl.Resolver).
type DeviceTarget interface {
	Get(ctx context.Context) string
	SetHost(ctx context.Context, ip string) error
}

type Options struct {
	Prefix      string
	Version     string
	AssetOrigin string
	// APITimeout bounds a network attempt for api requests before the
	// cache is consulted.
	APITimeout           time.Duration
	MaxEntryBytes        int64
	Precache             []string
	SkipWaitingOnInstall bool
	Verbose              bool
}

type Worker struct {
	storage Storage
	client  *http.Client
	device  DeviceTarget
	opts    Options
	now     func() time.Time

	router http.Handler

	mu    sync.RWMutex
	state State
}

func New(storage Storage, client *http.Client, device DeviceTarget, opts Options) *Worker {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Prefix == "" {
		opts.Prefix = "awtrix3"
	}
	if opts.Version == "" {
		opts.Version = "2.0.0"
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = 5 * time.Second
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = 1 << 20
	}
	w := &Worker{storage: storage, client: client, device: device, opts: opts, now: time.Now}
	w.router = w.routes()
	return w
}

func (w *Worker) StaticCache() string {
	return fmt.Sprintf("%s-static-v%s", w.opts.Prefix, w.opts.Version)
}

func (w *Worker) DynamicCache() string {
	return fmt.Sprintf("%s-dynamic-v%s", w.opts.Prefix, w.opts.Version)
}

// VersionName is reported to GET_VERSION.
func (w *Worker) VersionName() string {
	return fmt.Sprintf("%s-v%s", w.opts.Prefix, w.opts.Version)
}

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	if w.opts.Verbose {
		log.Printf("offline worker state: %s", s)
	}
}

// Install precaches the static list. The list is cached all or nothing; on
// failure the worker still ends up installed but does not skip waiting.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	entries := make([]Entry, 0, len(w.opts.Precache))
	var installErr error
	for _, path := range w.opts.Precache {
		target := w.assetURL(ctx, path)
		e, err := w.fetch(ctx, http.MethodGet, target, nil)
		if err == nil && !ok(e.Status) {
			err = fmt.Errorf("precache %s: status %d", target, e.Status)
		}
		if err != nil {
			installErr = err
			break
		}
		entries = append(entries, e)
	}
	if installErr == nil {
		for _, e := range entries {
			if err := w.storage.Put(ctx, w.StaticCache(), e); err != nil {
				installErr = err
				break
			}
		}
	}

	w.setState(StateInstalled)
	if installErr != nil {
		log.Printf("offline precache failed: cache=%s err=%v", w.StaticCache(), installErr)
		return installErr
	}
	log.Printf("offline precache done: cache=%s files=%d", w.StaticCache(), len(entries))

	if w.opts.SkipWaitingOnInstall {
		return w.SkipWaiting(ctx)
	}
	return nil
}

// SkipWaiting activates an installed worker immediately.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	if w.State() != StateInstalled {
		return nil
	}
	return w.Activate(ctx)
}

// Activate drops every cache that is not the current static or dynamic one.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)
	names, err := w.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == w.StaticCache() || name == w.DynamicCache() {
			continue
		}
		log.Printf("offline delete old cache: cache=%s", name)
		if err := w.storage.Delete(ctx, name); err != nil {
			return err
		}
	}
	w.setState(StateActivated)
	return nil
}

// ClearCache deletes every cache.
func (w *Worker) ClearCache(ctx context.Context) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := w.storage.Delete(ctx, name); err != nil {
			return err
		}
	}
	log.Printf("offline caches cleared: count=%d", len(names))
	return nil
}

// Classify picks the caching strategy for a request path and Accept header.
func Classify(path, accept string) Class {
	switch {
	case strings.Contains(path, "/api/"):
		return ClassAPI
	case isStatic(path):
		return ClassStatic
	case strings.Contains(accept, "text/html"):
		return ClassHTML
	}
	return ClassOther
}

func isStatic(path string) bool {
	return imagePattern.MatchString(path) ||
		fontPattern.MatchString(path) ||
		stylePattern.MatchString(path) ||
		scriptPattern.MatchString(path) ||
		strings.Contains(path, "/css/") ||
		strings.Contains(path, "/js/") ||
		strings.Contains(path, "/icons/")
}

// IsDevicePath reports whether path is served by the device itself.
func IsDevicePath(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		path == "/list" || strings.HasPrefix(path, "/list?") ||
		path == "/edit" || strings.HasPrefix(path, "/edit/")
}

// Fetch answers a GET for target. It never fails: when nothing else is
// available the result is the offline page or a 408.
func (w *Worker) Fetch(ctx context.Context, target, path, accept string) Entry {
	class := Classify(path, accept)

	var (
		e   Entry
		err error
	)
	switch class {
	case ClassAPI:
		return w.fetchAPI(ctx, target)
	case ClassStatic:
		e, err = w.fetchStatic(ctx, target)
	case ClassHTML:
		return w.fetchHTML(ctx, target)
	default:
		e, err = w.fetchNetworkFirst(ctx, target, path)
	}
	if err == nil {
		return e
	}

	log.Printf("offline fetch failed: class=%s url=%s err=%v", class, target, err)
	if strings.Contains(accept, "text/html") {
		return w.offlinePage(target)
	}
	if cached, found := w.match(ctx, target); found {
		return cached
	}
	return Entry{
		URL:    target,
		Status: http.StatusRequestTimeout,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte("Network error"),
	}
}

func (w *Worker) fetchAPI(ctx context.Context, target string) Entry {
	apiCtx, cancel := context.WithTimeout(ctx, w.opts.APITimeout)
	defer cancel()

	e, err := w.fetch(apiCtx, http.MethodGet, target, nil)
	if err == nil {
		if ok(e.Status) {
			w.put(ctx, w.DynamicCache(), e)
		}
		return e
	}

	if w.opts.Verbose {
		log.Printf("offline api network failed, trying cache: url=%s err=%v", target, err)
	}
	if cached, found := w.match(ctx, target); found {
		return cached
	}
	return Entry{
		URL:    target,
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(offlineJSON),
	}
}

func (w *Worker) fetchStatic(ctx context.Context, target string) (Entry, error) {
	if cached, found := w.match(ctx, target); found {
		return cached, nil
	}
	e, err := w.fetch(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Entry{}, err
	}
	if ok(e.Status) {
		w.put(ctx, w.StaticCache(), e)
	}
	return e, nil
}

func (w *Worker) fetchHTML(ctx context.Context, target string) Entry {
	e, err := w.fetch(ctx, http.MethodGet, target, nil)
	if err == nil {
		if ok(e.Status) {
			w.put(ctx, w.DynamicCache(), e)
		}
		return e
	}
	if cached, found := w.match(ctx, target); found {
		return cached
	}
	return w.offlinePage(target)
}

func (w *Worker) fetchNetworkFirst(ctx context.Context, target, path string) (Entry, error) {
	e, err := w.fetch(ctx, http.MethodGet, target, nil)
	if err != nil {
		if cached, found := w.match(ctx, target); found {
			return cached, nil
		}
		return Entry{}, err
	}
	if ok(e.Status) && w.cacheable(path, e) {
		w.put(ctx, w.DynamicCache(), e)
	}
	return e, nil
}

// cacheable rejects api paths and bodies over the size ceiling.
func (w *Worker) cacheable(path string, e Entry) bool {
	if strings.Contains(path, "/api/") {
		return false
	}
	return int64(len(e.Body)) <= w.opts.MaxEntryBytes
}

func (w *Worker) fetch(ctx context.Context, method, target string, header http.Header) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Entry{}, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		URL:      target,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: w.now(),
	}, nil
}

func (w *Worker) match(ctx context.Context, key string) (Entry, bool) {
	e, found, err := w.storage.Match(ctx, key)
	if err != nil {
		log.Printf("offline cache match failed: url=%s err=%v", key, err)
		return Entry{}, false
	}
	return e, found
}

func (w *Worker) put(ctx context.Context, cache string, e Entry) {
	if err := w.storage.Put(ctx, cache, e); err != nil {
		log.Printf("offline cache put failed: cache=%s url=%s err=%v", cache, e.URL, err)
	}
}

func (w *Worker) assetURL(ctx context.Context, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return w.assetOrigin(ctx) + path
}

func (w *Worker) assetOrigin(ctx context.Context) string {
	if w.opts.AssetOrigin != "" {
		return strings.TrimSuffix(w.opts.AssetOrigin, "/")
	}
	return w.device.Get(ctx)
}

func (w *Worker) offlinePage(target string) Entry {
	return Entry{
		URL:    target,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(offlinePage),
	}
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
