/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_autopilot/internal/auth"
)

var (
	tokenOperator string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the control API",
	Long:  "Sign a bearer token with GRIMNIR_JWT_SECRET for the control routes and the mixer stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return issueToken(cmd.OutOrStdout(), cfg.JWTSecret, tokenOperator, tokenTTL)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "operator", "Operator name stored in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func issueToken(w io.Writer, secret, operator string, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("GRIMNIR_JWT_SECRET is not set")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	token, err := auth.Issue([]byte(secret), auth.Claims{Operator: operator}, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
