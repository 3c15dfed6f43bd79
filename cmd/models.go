// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var modelsJSON bool

// modelsCmd lists the models the tunnel would serve.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the running local model servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		if err := reg.Refresh(cmd.Context()); err != nil {
			return err
		}
		models := reg.Models()

		if modelsJSON {
			b, err := json.MarshalIndent(models, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}

		if len(models) == 0 {
			pterm.Warning.Println("No models found. Start a local model server and try again.")
			return nil
		}
		rows := pterm.TableData{{"Model", "Provider", "Type", "Description"}}
		for _, m := range models {
			rows = append(rows, []string{m.Name, m.Provider, string(m.Capability), m.Description})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}
		for _, c := range reg.Conflicts() {
			pterm.Warning.Printf("%q is served by %s; the copy on %s is ignored\n", c.Model, c.Kept, c.Skipped)
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print models as JSON")
	rootCmd.AddCommand(modelsCmd)
}
