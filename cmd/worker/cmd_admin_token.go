package main

import (
	"errors"
	"fmt"

	"uvian-worker/internal/infra/web"

	"github.com/spf13/cobra"
)

var tokenSubject string

func init() {
	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "ops", "token subject")
	rootCmd.AddCommand(adminTokenCmd)
}

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint a bearer token for the admin API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		if cfg.Admin.JWTSecret == "" {
			return errors.New("admin.jwt_secret is not set")
		}
		tok, err := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(tokenSubject)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
