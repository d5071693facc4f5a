package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/app"
	"github.com/HsiangNianian/matrixpanel/internal/store"
)

var validThemes = map[string]bool{"auto": true, "light": true, "dark": true}

var (
	prefsTheme      string
	prefsLastPage   string
	prefsAnimations string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change saved preferences",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := app.OpenStore(cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		prefs, err := st.Preferences(ctx)
		if err != nil {
			return err
		}
		changed, err := applyPrefs(cmd, &prefs)
		if err != nil {
			return err
		}
		if changed {
			if err := st.SetPreferences(ctx, prefs); err != nil {
				return err
			}
			if err := st.SetTheme(ctx, prefs.Theme); err != nil {
				return err
			}
		}
		return printJSON(cmd, prefs)
	},
}

func applyPrefs(cmd *cobra.Command, prefs *store.Preferences) (bool, error) {
	flags := cmd.Flags()
	changed := false
	if flags.Changed("theme") {
		if !validThemes[prefsTheme] {
			return false, fmt.Errorf("unknown theme %q (auto, light or dark)", prefsTheme)
		}
		prefs.Theme = prefsTheme
		changed = true
	}
	if flags.Changed("last-page") {
		prefs.LastPage = prefsLastPage
		changed = true
	}
	if flags.Changed("animations") {
		switch prefsAnimations {
		case "on", "true":
			prefs.Animations = true
		case "off", "false":
			prefs.Animations = false
		default:
			return false, fmt.Errorf("animations must be on or off")
		}
		changed = true
	}
	return changed, nil
}

func init() {
	prefsCmd.Flags().StringVar(&prefsTheme, "theme", "", "Theme: auto, light or dark")
	prefsCmd.Flags().StringVar(&prefsLastPage, "last-page", "", "Page opened on start")
	prefsCmd.Flags().StringVar(&prefsAnimations, "animations", "", "on or off")
	rootCmd.AddCommand(prefsCmd)
}
