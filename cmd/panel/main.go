package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/app"
	"github.com/HsiangNianian/matrixpanel/internal/config"
)

const (
	appName    = "panel"
	appVersion = "2.0.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Control panel for AWTRIX3 LED matrix clocks",
	Long: `Panel talks to an AWTRIX3 device directly over HTTP or, when embedded,
through a host relay. It can also run the relay and an offline caching
proxy for the web interface.`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("PANEL_CONFIG"), "Path to config file (JSON with comments)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apierr.Message(err))
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// withApp builds the process context, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
