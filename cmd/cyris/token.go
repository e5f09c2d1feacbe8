package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cyris/internal/auth"
)

var (
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage session tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <user-id>",
	Short: "Issue a session token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to SESSION_TTL)")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ttl := cfg.SessionTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	token, expiresAt, err := auth.IssueSessionToken(args[0], tokenEmail, cfg.JWTSecret, ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
