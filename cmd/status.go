// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"time"

	"mindstudio/local/internal/auth"
	"mindstudio/local/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// statusCmd probes every configured local model server and shows the auth state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which local model servers are running",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}

		stopSpinner := startInlineSpinner(cmd.OutOrStdout(), "Checking local model servers", stickFrames, 120*time.Millisecond)
		statuses := reg.Statuses(ctx)
		stopSpinner()

		rows := pterm.TableData{{"Provider", "Capabilities", "Status"}}
		running := 0
		for _, s := range statuses {
			if s.Running {
				running++
			}
			rows = append(rows, []string{s.Provider.DisplayName(), capabilityList(s.Provider.Capabilities()), runningMark(s.Running)})
		}
		if len(statuses) == 0 {
			pterm.Warning.Println("All providers are disabled in the configuration")
		} else if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}
		pterm.Println()

		key, source, err := newAuthService(m, log).APIKey()
		switch {
		case err != nil:
			pterm.Warning.Println(logging.PresentError("Could not read the API key", err))
		case source == auth.SourceNone:
			pterm.Warning.Println("Not logged in. Run 'mindstudio-local auth login'.")
		default:
			pterm.Printf("API key:       %s (%s)\n", logging.MaskKey(key), source)
		}
		pterm.Printf("Control plane: %s\n", m.BaseURL)
		pterm.Printf("Servers:       %s\n", fmt.Sprintf("%d of %d running", running, len(statuses)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
