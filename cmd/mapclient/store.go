package main

import (
	"context"
	"fmt"
	"time"

	"mapclient.gnet.app/internal/config"
	"mapclient.gnet.app/internal/storage"
)

// openStore creates the configured persistence backend. The returned close
// function is always non-nil.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.StorageBackend {
	case "redis":
		rs := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, func() {}, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		fs, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, func() {}, err
		}
		return fs, func() {}, nil
	}
}
