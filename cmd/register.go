// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"mindstudio/local/internal/backend"
	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/httperrors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// registerCmd announces the discovered models to MindStudio so they can be selected there.
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register local models with MindStudio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		m, err := newManifest(cfg)
		if err != nil {
			return err
		}
		key, _, err := newAuthService(m, log).APIKey()
		if err != nil {
			return err
		}
		cp, err := backend.NewControlPlane(m, key)
		if err != nil {
			return err
		}

		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		if !reg.AnyRunning(ctx) {
			return apperrors.New(apperrors.Config, "no local model server is running")
		}
		if err := reg.Refresh(ctx); err != nil {
			return err
		}
		models := reg.Models()
		if len(models) == 0 {
			return apperrors.New(apperrors.Config, "no models found on the running local model servers")
		}

		if err := cp.RegisterModels(ctx, models); err != nil {
			if httperrors.Classify(err) != httperrors.ClassOther {
				return httperrors.FormatNetworkError(err, "registering models with "+httperrors.ExtractHostFromURL(m.BaseURL))
			}
			return err
		}
		pterm.Success.Printf("Registered %d models with MindStudio\n", len(models))
		for _, c := range reg.Conflicts() {
			pterm.Warning.Printf("%q is served by %s; the copy on %s was not registered\n", c.Model, c.Kept, c.Skipped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
