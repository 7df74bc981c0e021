/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andref2015/train-agent/internal/auth"
)

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the system endpoints",
	Long: `Mint a JWT signed with TRAINAGENT_JWT_SIGNING_KEY.

Examples:
  # Operator token valid for one day
  trainagent token --subject alice --ttl 24h

  curl -H "Authorization: Bearer $(trainagent token)" localhost:8000/api/v1/system/queries
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{auth.RoleOperator}, "Roles to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	token, err := mintToken(cfg.JWTSigningKey, tokenSubject, tokenRoles, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func mintToken(key, subject string, roles []string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("TRAINAGENT_JWT_SIGNING_KEY is not set")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	token, err := auth.Issue([]byte(key), auth.Claims{UserID: subject, Roles: roles}, ttl)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
