// Package config implements the configuration loader (C11): a single
// exported struct populated via github.com/jessevdk/go-flags, mirroring
// cmd/api-gateway/main.go's inline config struct in the teacher.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/model"
)

// StorageDriver selects a concrete storage.Store implementation.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory"
	StorageBolt   StorageDriver = "bbolt"
)

// Config holds everything the synchronizer needs to start: the network to
// index, which storage driver to use, and the node RPC endpoint.
type Config struct {
	Network      string `long:"network" env:"WALLETSYNC_NETWORK" description:"chain network (mainnet, testnet, regtest, signet)" default:"mainnet"`
	Storage      string `long:"storage" env:"WALLETSYNC_STORAGE" description:"storage driver (memory, bbolt)" default:"memory"`
	StoragePath  string `long:"storage-path" env:"WALLETSYNC_STORAGE_PATH" description:"bbolt database file path"`
	BitcoindHost string `long:"bitcoind-host" env:"WALLETSYNC_BITCOIND_HOST" description:"node RPC host" default:"127.0.0.1"`
	BitcoindPort int    `long:"bitcoind-port" env:"WALLETSYNC_BITCOIND_PORT" description:"node RPC port" default:"8332"`
	BitcoindUser string `long:"bitcoind-user" env:"WALLETSYNC_BITCOIND_USER" description:"node RPC user"`
	BitcoindPass string `long:"bitcoind-pass" env:"WALLETSYNC_BITCOIND_PASS" description:"node RPC password"`
}

// Parse populates a Config from args (typically os.Args), applying
// WALLETSYNC_* environment variable fallbacks per field.
func Parse(args []string) (*Config, error) {
	var cfg Config
	if _, err := flags.ParseArgs(&cfg, args); err != nil {
		return nil, fmt.Errorf("%w: %v", bitcoin.ErrConfig, err)
	}
	return &cfg, nil
}

// ResolveNetwork validates and returns the configured network as a model.Network.
func (c *Config) ResolveNetwork() (model.Network, error) {
	switch model.Network(c.Network) {
	case model.Mainnet, model.Testnet, model.Regtest, model.Signet:
		return model.Network(c.Network), nil
	default:
		return "", fmt.Errorf("%w: unknown network %q", bitcoin.ErrConfig, c.Network)
	}
}

// ResolveStorage validates and returns the configured storage driver.
func (c *Config) ResolveStorage() (StorageDriver, error) {
	switch StorageDriver(c.Storage) {
	case StorageMemory, StorageBolt:
		return StorageDriver(c.Storage), nil
	default:
		return "", fmt.Errorf("%w: unknown storage driver %q", bitcoin.ErrConfig, c.Storage)
	}
}
