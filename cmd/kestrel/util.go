package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelfaas/kestrel/internal/assetstore"
	"github.com/kestrelfaas/kestrel/internal/config"
	"github.com/kestrelfaas/kestrel/internal/logging"
	"github.com/kestrelfaas/kestrel/internal/resourcestore"
)

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func getAssetStore(cfg *config.Config) (*assetstore.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	var mirror assetstore.Mirror
	if cfg.AssetBackup.Bucket != "" {
		m, err := assetstore.NewS3Mirror(context.Background(), cfg.AssetBackup.Bucket, cfg.AssetBackup.Prefix, "", "")
		if err != nil {
			logging.Op().Warn("asset backup mirror disabled", "error", err)
		} else {
			mirror = m
		}
	}
	return assetstore.New(dataDir, mirror), nil
}

func getResourceStore(cfg *config.Config) (*resourcestore.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	backend := resourcestore.KVBackendMemory
	if cfg.KV.Backend == "redis" {
		backend = resourcestore.KVBackendRedis
	}
	redisCfg := resourcestore.RedisConfig{Addr: cfg.KV.RedisAddr}
	return resourcestore.New(dataDir, backend, redisCfg, cfg.SQL.DSN), nil
}

// blocklistPath resolves the configured blocklist file against --data-dir
// unless it's already an absolute or relative path of its own.
func blocklistPath(cfg *config.Config) string {
	name := cfg.Egress.BlocklistFile
	if filepath.IsAbs(name) || strings.Contains(name, string(filepath.Separator)) {
		return name
	}
	return filepath.Join(dataDir, name)
}
