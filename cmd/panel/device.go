package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/api"
	"github.com/HsiangNianian/matrixpanel/internal/app"
	"github.com/HsiangNianian/matrixpanel/internal/tui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show device statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if statsRaw {
				return printResult(cmd, a.API.Stats.Stats(ctx))
			}
			return printResult(cmd, a.API.Stats.Formatted(ctx))
		})
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Print the current matrix contents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res := a.API.Display.Screen(ctx)
			if !res.Success {
				return res.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderMatrix(&res.Data))
			return nil
		})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Switch to the next app",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.Display.NextApp(ctx))
		})
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Switch to the previous app",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.Display.PreviousApp(ctx))
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings [KEY=VALUE...]",
	Short: "Show or update system settings",
	Long: `Without arguments the current settings are printed. With KEY=VALUE
pairs the settings are validated and written, for example:

  panel settings NET_STATIC=true NET_IP=192.168.1.40 MQTT_PORT=1883`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(args) == 0 {
				return printResult(cmd, a.API.System.Settings(ctx))
			}
			settings, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return printResult(cmd, a.API.System.UpdateSettings(ctx, settings))
		})
	},
}

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Show or update WiFi credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if wifiSSID == "" && wifiPassword == "" {
				return printResult(cmd, a.API.WiFi.Settings(ctx))
			}
			return printResult(cmd, a.API.WiFi.Update(ctx, api.Credentials{SSID: wifiSSID, Password: wifiPassword}))
		})
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the device",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.System.Reboot(ctx))
		})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect [IP|URL]",
	Short: "Point the panel at a device and check it answers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
				if !strings.Contains(target, "://") {
					target = "http://" + target
				}
			}
			healthy, err := a.API.Reconnect(ctx, target)
			if err != nil {
				return err
			}
			state := "unreachable"
			if healthy {
				state = "connected"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Resolver.Get(ctx), state)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard with matrix mirror and stats",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return tui.Run(ctx, a.API)
		})
	},
}

var (
	statsRaw     bool
	wifiSSID     string
	wifiPassword string
)

func init() {
	statsCmd.Flags().BoolVar(&statsRaw, "raw", false, "Print the unformatted /api/stats payload")
	wifiCmd.Flags().StringVar(&wifiSSID, "ssid", "", "Network name")
	wifiCmd.Flags().StringVar(&wifiPassword, "password", "", "Network password (at least 8 characters)")

	rootCmd.AddCommand(statsCmd, screenCmd, nextCmd, prevCmd, settingsCmd, wifiCmd, rebootCmd, connectCmd, watchCmd)
}

// printResult prints data on success and returns the classified error
// otherwise.
func printResult[T any](cmd *cobra.Command, res api.Result[T]) error {
	if !res.Success {
		return res.Err
	}
	return printJSON(cmd, res.Data)
}

// parseAssignments turns KEY=VALUE arguments into settings. Booleans and
// numbers are typed; everything else stays a string.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q, want KEY=VALUE", arg)
		}
		out[k] = typedValue(v)
	}
	return out, nil
}

func typedValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
