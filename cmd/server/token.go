package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/server"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <actorId>",
		Short: "Mint a development bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.LoadConfig(v)
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
