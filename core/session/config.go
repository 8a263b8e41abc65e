package session

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/chainstore/core/chunker"
	"github.com/pyropy/chainstore/core/ledger"
	"github.com/pyropy/chainstore/lib/logger"
)

const envPrefix = "CHAINSTORE"

type Config struct {
	Store struct {
		Path string `envconfig:"PATH" default:".chainstore/meta"`
	}
	Chunks struct {
		Size int `envconfig:"SIZE" default:"262144"`
	}
	Log struct {
		Level string `envconfig:"LEVEL" default:"info"`
	}
	Cache struct {
		Size int `envconfig:"SIZE" default:"128"`
	}
}

// GetConfig reads CHAINSTORE_* variables from the environment.
func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process(envPrefix, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when the environment is empty.
func DefaultConfig() *Config {
	var cfg Config
	cfg.Store.Path = ".chainstore/meta"
	cfg.Chunks.Size = chunker.DefaultChunkSize
	cfg.Log.Level = logger.LevelInfo
	cfg.Cache.Size = ledger.DefaultCacheSize

	return &cfg
}
