package main

import (
	"log/slog"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/server"
	"github.com/Tyrowin/chatgate/internal/store/memstore"
	"github.com/Tyrowin/chatgate/internal/store/pebblestore"
)

// backend is a store the gateway reads and writes and the seed command fills.
type backend interface {
	chat.Store
	chat.Seeder
}

func openStore(cfg *server.Config, logger *slog.Logger) (backend, func() error, error) {
	if cfg.Store == server.StorePebble {
		s, err := pebblestore.Open(cfg.DBPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return memstore.New(), func() error { return nil }, nil
}
