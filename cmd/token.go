package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jobpilot/services"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP trigger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.Server.JWTSecret == "" {
			return errors.New("server.jwt_secret is not configured")
		}
		tokens, err := services.NewTriggerTokens(appConfig.Server.JWTSecret)
		if err != nil {
			return err
		}
		token, err := tokens.Issue(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "scheduler", "caller name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
}
