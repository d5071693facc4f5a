package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/app"
	"github.com/HsiangNianian/matrixpanel/internal/display"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the matrix into an animated GIF",
	Long: `Capture frames from /api/screen and write them as a GIF. Recording stops
after --frames captures or on Ctrl-C, whichever comes first.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := recordOut
		if out == "" {
			out = fmt.Sprintf("awtrix-%d.gif", time.Now().UnixMilli())
		}
		interval := max(recordInterval, display.MinFrameDelay)

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res := a.API.Display.Record(ctx, interval, recordFrames)
			if !res.Success {
				return res.Err
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(res.Data))
			return nil
		})
	},
}

var (
	recordOut      string
	recordFrames   int
	recordInterval time.Duration
)

func init() {
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "", "Output file (default awtrix-<timestamp>.gif)")
	recordCmd.Flags().IntVar(&recordFrames, "frames", 50, "Maximum number of frames")
	recordCmd.Flags().DurationVar(&recordInterval, "interval", 200*time.Millisecond, "Delay between captures")
	rootCmd.AddCommand(recordCmd)
}
