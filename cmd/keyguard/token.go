package main

import (
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/api"
	"github.com/RishiKendai/keyguard/internal/configs/env"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a local backend",
	Long: `Token signs an HS256 token with the user_id claim the backend expects, using
--secret or $JWT_SECRET. Intended for local testing only.`,
	Args: cobra.ExactArgs(1),
	// no backend URL or token needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = env.LoadEnv()

		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = env.GetEnv("JWT_SECRET", "")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := api.IssueUserToken(secret, args[0], ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", "", "HS256 signing secret (default $JWT_SECRET)")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime, 0 for no expiry")
	rootCmd.AddCommand(tokenCmd)
}
