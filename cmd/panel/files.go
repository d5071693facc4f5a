package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/api"
	"github.com/HsiangNianian/matrixpanel/internal/app"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage icons and files on the device",
}

var filesListCmd = &cobra.Command{
	Use:   "list [DIR]",
	Short: "List a directory (default /ICONS)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res := a.API.Files.List(ctx, dir)
			if !res.Success {
				return res.Err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range res.Data {
				size := ""
				if !f.IsDir() {
					size = humanize.IBytes(uint64(f.Size))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.Type, f.Name, size)
			}
			return w.Flush()
		})
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload an 8x8 or 32x8 GIF or JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		u := api.Upload{
			Name:        filepath.Base(args[0]),
			ContentType: http.DetectContentType(data),
			Data:        data,
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.Files.Upload(ctx, u, uploadDir))
		})
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.Files.Delete(ctx, args[0]))
		})
	},
}

var filesRenameCmd = &cobra.Command{
	Use:   "rename FROM TO",
	Short: "Rename or move a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printResult(cmd, a.API.Files.Rename(ctx, args[0], args[1]))
		})
	},
}

var filesURLCmd = &cobra.Command{
	Use:   "url PATH",
	Short: "Print a loadable URL for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.API.Files.ImageURL(ctx, args[0]))
			return nil
		})
	},
}

var uploadDir string

func init() {
	filesUploadCmd.Flags().StringVar(&uploadDir, "dir", api.DefaultIconDir, "Target directory on the device")

	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesDeleteCmd, filesRenameCmd, filesURLCmd)
	rootCmd.AddCommand(filesCmd)
}
