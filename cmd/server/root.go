package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/chatgate/internal/server"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "chatgate",
		Short:         "Real-time conversation delivery gateway",
		Long:          "chatgate holds authenticated WebSocket connections, tracks presence, routes conversation events to room members and persists message lifecycle changes.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("port", "", "listen address, e.g. :8080 (SERVER_PORT)")
	flags.String("store", "", "storage backend: memory or pebble (STORE)")
	flags.String("db-path", "", "pebble data directory (DB_PATH)")
	flags.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")

	rootCmd.AddCommand(
		newServeCmd(v),
		newTokenCmd(v),
		newSeedCmd(v),
	)

	return rootCmd
}

// initConfig layers configuration: flags over environment over the optional
// config file.
func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.AutomaticEnv()

	flags := cmd.Flags()
	bindings := map[string]string{
		server.KeyServerPort: "port",
		server.KeyStore:      "store",
		server.KeyDBPath:     "db-path",
		server.KeyLogLevel:   "log-level",
	}
	for key, flag := range bindings {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	path, err := flags.GetString("config")
	if err != nil || path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}
