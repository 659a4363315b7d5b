package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/chatgate/internal/logging"
	"github.com/Tyrowin/chatgate/internal/server"
	"github.com/Tyrowin/chatgate/internal/store/fixture"
)

func newSeedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load actors and conversations from a YAML fixture into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.LoadConfig(v)
			logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
			if cfg.Store == server.StoreMemory {
				logger.Warn("seeding_memory_store_is_lost_on_exit")
			}

			fx, err := fixture.LoadFile(args[0])
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := fx.Apply(cmd.Context(), store); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d actors and %d conversations into %s store\n",
				len(fx.Actors), len(fx.Conversations), cfg.Store)
			return err
		},
	}
}
