/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

var (
	catalogueJSON bool
	presetsFile   string
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List transition styles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStyles(cmd.OutOrStdout(), transition.Styles(), catalogueJSON)
	},
}

var ritualsCmd = &cobra.Command{
	Use:   "rituals",
	Short: "List ritual presets",
	Long: `List the ritual presets the engine would run.

Without --file the built-in presets are listed. With --file the YAML preset
file is loaded and validated first, which makes this a quick check for a
GRIMNIR_RITUAL_PRESETS file before deploying it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		presets := transition.DefaultPresets()
		if presetsFile != "" {
			loaded, err := transition.LoadPresets(presetsFile)
			if err != nil {
				return err
			}
			presets = loaded
		}
		return printRituals(cmd.OutOrStdout(), presets, catalogueJSON)
	},
}

func init() {
	stylesCmd.Flags().BoolVar(&catalogueJSON, "json", false, "Print JSON instead of a table")
	ritualsCmd.Flags().BoolVar(&catalogueJSON, "json", false, "Print JSON instead of a table")
	ritualsCmd.Flags().StringVarP(&presetsFile, "file", "f", "", "YAML preset file to load and validate")
	rootCmd.AddCommand(stylesCmd)
	rootCmd.AddCommand(ritualsCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStyles(w io.Writer, styles []transition.StyleInfo, asJSON bool) error {
	if asJSON {
		return printJSON(w, styles)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STYLE\tSTEPS\tDESCRIPTION")
	for _, s := range styles {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.Steps, s.Description)
	}
	return tw.Flush()
}

func printRituals(w io.Writer, presets []transition.RitualPreset, asJSON bool) error {
	if asJSON {
		return printJSON(w, presets)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tSTYLES\tDESCRIPTION")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Key, p.Name, strings.Join(p.Styles, " > "), p.Description)
	}
	return tw.Flush()
}
