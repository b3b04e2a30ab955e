package cmd

import (
	"fmt"
	"time"

	"civicpulse-be/identity"
	authUtils "civicpulse-be/utils"

	"github.com/spf13/cobra"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

// tokenCmd mints an identity token for local development and testing.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a signed identity token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.TokenTTL
		}
		tok, err := authUtils.GenerateToken(cfg.JWTSecret, args[0], identity.NormalizeRole(tokenRole), ttl)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(identity.RoleCitizen), "Role claim: citizen or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default JWT_TTL_HOURS)")
}
