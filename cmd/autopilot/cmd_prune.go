/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_autopilot/internal/db"
	"github.com/friendsincode/grimnir_autopilot/internal/journal"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old sessions from the journal",
	Long: `Delete finished autopilot sessions and their transitions from the journal.

Examples:
  # Keep the last 30 days
  autopilot prune --older-than 720h
`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Remove sessions that ended before now minus this duration")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.DBDSN == "" {
		return fmt.Errorf("journal disabled: GRIMNIR_DB_DSN is empty")
	}
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(database)
	if err := journal.Migrate(database); err != nil {
		return err
	}

	cutoff := time.Now().Add(-pruneOlderThan)
	removed, err := journal.New(database, logger).Prune(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	logger.Info().Int64("sessions", removed).Time("cutoff", cutoff).Msg("journal pruned")
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s) that ended before %s\n", removed, cutoff.Format(time.RFC3339))
	return nil
}
