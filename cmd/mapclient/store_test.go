package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"mapclient.gnet.app/internal/config"
	"mapclient.gnet.app/internal/storage"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		cfg := config.Default()
		cfg.DataDir = t.TempDir()
		s, closeFn, err := openStore(ctx, &cfg)
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		defer closeFn()
		if _, ok := s.(*storage.FileStore); !ok {
			t.Errorf("expected a file store, got %T", s)
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.StorageBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		s, closeFn, err := openStore(ctx, &cfg)
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		defer closeFn()
		if err := s.Set(ctx, storage.PointsKey, []byte("[]")); err != nil {
			t.Fatal(err)
		}
		if !mr.Exists(cfg.RedisPrefix + storage.PointsKey) {
			t.Error("expected key to be written with the configured prefix")
		}
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := config.Default()
		cfg.StorageBackend = "redis"
		cfg.RedisAddr = addr
		if _, closeFn, err := openStore(ctx, &cfg); err == nil {
			closeFn()
			t.Fatal("expected an error for an unreachable redis")
		}
	})
}
