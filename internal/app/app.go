// Package app builds the shared process context: store, resolver, HTTP
// client, bridge and API façade. Build it once and pass it around.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/HsiangNianian/matrixpanel/internal/api"
	"github.com/HsiangNianian/matrixpanel/internal/baseurl"
	"github.com/HsiangNianian/matrixpanel/internal/bridge"
	"github.com/HsiangNianian/matrixpanel/internal/config"
	"github.com/HsiangNianian/matrixpanel/internal/display"
	"github.com/HsiangNianian/matrixpanel/internal/httpclient"
	"github.com/HsiangNianian/matrixpanel/internal/offline"
	"github.com/HsiangNianian/matrixpanel/internal/store"
	"github.com/HsiangNianian/matrixpanel/internal/transport"
	"github.com/HsiangNianian/matrixpanel/internal/ws"
)

type App struct {
	Config    config.Config
	Store     store.Store
	Resolver  *baseurl.Resolver
	HTTP      *httpclient.Client
	Bridge    *bridge.Bridge
	Transport *transport.Transport
	API       *api.Manager

	parent *bridge.WSParent
}

// New wires every layer from cfg. In embedded mode it dials the host relay
// and fails if the relay cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: st}
	a.Resolver = baseurl.New(st, baseurl.Options{
		Embedded:     cfg.Bridge.Enabled,
		Referrer:     cfg.Bridge.Referrer,
		FallbackHost: cfg.Device.FallbackHost(),
		Verbose:      cfg.Debug.Verbose,
	})
	a.HTTP = httpclient.New(
		httpclient.WithTimeout(cfg.HTTP.Timeout()),
		httpclient.WithRetry(cfg.HTTP.RetryAttempts, cfg.HTTP.RetryDelay()),
		httpclient.WithVerbose(cfg.Debug.Verbose),
	)

	// A nil *bridge.Bridge must not reach the transport as a non-nil
	// interface.
	var sender transport.Sender
	if cfg.Bridge.Enabled {
		if cfg.Bridge.ParentURL == "" {
			_ = st.Close()
			return nil, errors.New("bridge enabled without parent_url")
		}
		a.Bridge = bridge.New(nil, cfg.Bridge.Timeout())
		a.Bridge.SetVerbose(cfg.Debug.Verbose)
		a.parent, err = bridge.Dial(ctx, cfg.Bridge.ParentURL, bridge.DialOptions{
			TargetOrigin: cfg.Bridge.TargetOrigin,
			AuthToken:    cfg.Bridge.AuthToken,
		}, a.Bridge)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		sender = a.Bridge
	}

	a.Transport = transport.New(a.Resolver, a.HTTP, sender, transport.Options{
		Embedded:     cfg.Bridge.Enabled,
		MeasureCalls: cfg.Debug.MeasureCalls,
		LogErrors:    cfg.Debug.LogErrors,
	})
	a.API = api.NewManager(a.Transport, a.Resolver, display.GIFEncoder{Scale: 10})
	return a, nil
}

// OpenStore picks redis when an address is configured, else the state file.
// Without a usable config directory it falls back to memory.
func OpenStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.RedisAddr != "" {
		log.Printf("use redis store: %s", cfg.RedisAddr)
		return store.NewRedisStore(cfg.RedisAddr), nil
	}

	path := cfg.FilePath
	if path == "" {
		var err error
		if path, err = store.DefaultFilePath(); err != nil {
			log.Printf("use memory store: %v", err)
			return store.NewMemoryStore(), nil
		}
	}
	st, err := store.OpenFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open state file failed: %w", err)
	}
	log.Printf("use file store: %s", path)
	return st, nil
}

// Worker builds the offline worker. Caches live next to the state store
// when it is redis.
func (a *App) Worker() *offline.Worker {
	var storage offline.Storage = offline.NewMemoryStorage()
	if rs, ok := a.Store.(*store.RedisStore); ok {
		storage = offline.NewRedisStorage(rs.Client())
	}
	oc := a.Config.Offline
	return offline.New(storage, &http.Client{}, a.Resolver, offline.Options{
		Prefix:               oc.CachePrefix,
		Version:              oc.Version,
		AssetOrigin:          oc.AssetOrigin,
		APITimeout:           oc.APITimeout(),
		MaxEntryBytes:        oc.MaxEntryBytes,
		Precache:             oc.Precache,
		SkipWaitingOnInstall: oc.SkipWaitingOnInstall,
		Verbose:              a.Config.Debug.Verbose,
	})
}

// Relay builds the host side of the bridge.
func (a *App) Relay() *ws.Hub {
	return ws.NewHub(a.Store, a.HTTP, a.Resolver, a.Config.Relay.AuthToken, a.Config.Relay.AllowedOrigin)
}

// Embedded reports whether calls go through the host relay.
func (a *App) Embedded() bool {
	return a.Transport.Embedded()
}

// RelayDone is closed when the relay link drops. It is nil in direct mode.
func (a *App) RelayDone() <-chan struct{} {
	if a.parent == nil {
		return nil
	}
	return a.parent.Done()
}

func (a *App) Close() error {
	var errs []error
	if a.parent != nil {
		errs = append(errs, a.parent.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
