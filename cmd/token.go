package cmd

import (
	"fmt"

	"github.com/sokofresh/mpesa-checkout/internal/transport/middleware"
	"github.com/spf13/cobra"
)

var (
	tokenCmd = &cobra.Command{
		RunE:  runToken,
		Use:   "token",
		Short: "Mint a bearer token for the payments API",
	}
	tokenSubject string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
}

func runToken(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	issuer := middleware.NewTokenIssuer(cfg.Security.APISecret, cfg.Security.TokenDuration)
	token, err := issuer.Mint(tokenSubject)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}
