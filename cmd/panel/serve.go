package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/HsiangNianian/matrixpanel/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host relay and the offline caching proxy",
	Long: `Serve listens on offline.listen_addr and mounts:

  relay.path           websocket endpoint for embedded panels
  /_worker/message     offline worker control channel
  /healthz             liveness probe
  /                    offline caching proxy in front of the device`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, runServe)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, a *app.App) error {
	cfg := a.Config
	if !cfg.Relay.Enabled && !cfg.Offline.Enabled {
		return errors.New("nothing to serve: relay and offline are both disabled")
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Relay.Enabled {
		hub := a.Relay()
		r.HandleFunc(cfg.Relay.Path, hub.HandleBridge)
		log.Printf("relay enabled: path=%s", cfg.Relay.Path)
	}

	if cfg.Offline.Enabled {
		worker := a.Worker()
		r.PathPrefix("/").Handler(worker)
		g.Go(func() error {
			// A failed precache leaves the worker installed; the server keeps
			// running and SKIP_WAITING can still activate it.
			if err := worker.Install(ctx); err != nil {
				log.Printf("offline install incomplete: %v", err)
			}
			return nil
		})
	}

	srv := &http.Server{Addr: cfg.Offline.ListenAddr, Handler: r}
	g.Go(func() error {
		log.Printf("panel listening on %s", cfg.Offline.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
