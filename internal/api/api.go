// Package api is the typed façade over the transport. Every method returns a
// Result envelope; transport errors are kept in Result.Err for callers that
// need to classify them.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/HsiangNianian/matrixpanel/internal/display"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

// Device endpoints.
const (
	EndpointSystem      = "/api/system"
	EndpointStats       = "/api/stats"
	EndpointScreen      = "/api/screen"
	EndpointWiFi        = "/api/wifi"
	EndpointNextApp     = "/api/nextapp"
	EndpointPreviousApp = "/api/previousapp"
	EndpointList        = "/list"
	EndpointEdit        = "/edit"
	EndpointReboot      = "/api/reboot"
)

// Caller is the transport.
type Caller interface {
	Call(ctx context.Context, d protocol.Descriptor) (json.RawMessage, error)
	Embedded() bool
}

// Origin is the base URL resolver.
type Origin interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, origin string) error
}

type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func fail[T any](err error) Result[T] {
	return Result[T]{Error: err.Error(), Err: err}
}

// decode unmarshals raw into T, failing the envelope on malformed data.
func decode[T any](raw json.RawMessage, err error) Result[T] {
	if err != nil {
		return fail[T](err)
	}
	var data T
	if uerr := json.Unmarshal(raw, &data); uerr != nil {
		return fail[T](fmt.Errorf("invalid response received from device: %w", uerr))
	}
	return ok(data)
}

type base struct {
	caller Caller
	origin Origin
}

func (b base) call(ctx context.Context, endpoint string, d protocol.Descriptor) (json.RawMessage, error) {
	d.URL = b.origin.Get(ctx) + endpoint
	if d.Header == nil {
		d.Header = http.Header{}
	}
	if d.Header.Get("Content-Type") == "" {
		d.Header.Set("Content-Type", "application/json")
	}
	return b.caller.Call(ctx, d)
}

func (b base) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return b.call(ctx, endpoint, protocol.Descriptor{Method: http.MethodGet})
}

func (b base) postJSON(ctx context.Context, endpoint string, payload any) Result[json.RawMessage] {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fail[json.RawMessage](err)
		}
	}
	raw, err := b.call(ctx, endpoint, protocol.Descriptor{Method: http.MethodPost, Body: body})
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return ok(raw)
}

// Manager groups the services; build one per process and share it.
type Manager struct {
	System  *SystemService
	WiFi    *WiFiService
	Stats   *StatsService
	Display *DisplayService
	Files   *FileService

	origin Origin
}

func NewManager(caller Caller, origin Origin, enc display.Encoder) *Manager {
	b := base{caller: caller, origin: origin}
	return &Manager{
		System:  &SystemService{base: b},
		WiFi:    &WiFiService{base: b},
		Stats:   &StatsService{base: b},
		Display: &DisplayService{base: b, encoder: enc},
		Files:   &FileService{base: b},
		origin:  origin,
	}
}

// HealthCheck reports whether the device answers /api/stats.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	return m.Stats.Stats(ctx).Success
}

// Reconnect points every service at newBase (if given) and checks health.
func (m *Manager) Reconnect(ctx context.Context, newBase string) (bool, error) {
	if newBase != "" {
		if err := m.origin.Set(ctx, newBase); err != nil {
			return false, err
		}
	}
	return m.HealthCheck(ctx), nil
}
