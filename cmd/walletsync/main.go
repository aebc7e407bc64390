package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btcd/rpcclient"
	"go.uber.org/zap"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/config"
	"github.com/walletcore/btcsync/internal/events"
	"github.com/walletcore/btcsync/internal/model"
	"github.com/walletcore/btcsync/internal/storage"
	"github.com/walletcore/btcsync/internal/storage/boltstore"
	"github.com/walletcore/btcsync/internal/storage/memory"
	"github.com/walletcore/btcsync/internal/walletsync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.Parse(os.Args)
	if err != nil {
		logger.Fatal("failed to parse arguments", zap.Error(err))
	}

	network, err := cfg.ResolveNetwork()
	if err != nil {
		logger.Fatal("invalid network", zap.Error(err))
	}
	params, err := bitcoin.ChainParams(network)
	if err != nil {
		logger.Fatal("unsupported network", zap.Error(err))
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("failed to build storage driver", zap.Error(err))
	}

	nodeClient, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", cfg.BitcoindHost, cfg.BitcoindPort),
		User:         cfg.BitcoindUser,
		Pass:         cfg.BitcoindPass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		logger.Fatal("failed to build node RPC client", zap.Error(err))
	}
	defer nodeClient.Shutdown()

	rpc := bitcoin.NewRPCClient(bitcoin.NewLiveNodeClient(nodeClient))
	publisher := events.New()

	sync := walletsync.New(rpc, store, params, publisher, logger)

	publisher.OnNewHeight(func() {
		logger.Debug("new height")
	})
	publisher.OnTouchedAddress(func(address string) {
		logger.Debug("touched address", zap.String("address", address))
	})

	if err := sync.Initialize(); err != nil {
		logger.Fatal("failed to initialize synchronizer", zap.Error(err))
	}

	if err := checkNetwork(sync, network); err != nil {
		logger.Fatal("node network mismatch", zap.Error(err))
	}

	logger.Info("starting synchronizer", zap.String("network", string(network)), zap.String("storage", cfg.Storage))
	if err := sync.Run(ctx); err != nil {
		logger.Fatal("synchronizer stopped with error", zap.Error(err))
	}
	logger.Info("synchronizer stopped")
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	driver, err := cfg.ResolveStorage()
	if err != nil {
		return nil, err
	}
	switch driver {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageBolt:
		path := cfg.StoragePath
		if path == "" {
			path = filepath.Join(".", "walletsync.db")
		}
		return boltstore.Open(path)
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", bitcoin.ErrConfig, cfg.Storage)
	}
}

// checkNetwork fails initialization if the node's reported network does not
// match the configured one, per §4.10/§6.
func checkNetwork(sync *walletsync.Synchronizer, network model.Network) error {
	info, err := sync.GetInfo()
	if err != nil {
		return fmt.Errorf("get node info: %w", err)
	}
	nodeIsTestnet := info.TestNet
	configuredIsTestnet := network == model.Testnet || network == model.Regtest || network == model.Signet
	if nodeIsTestnet != configuredIsTestnet {
		return fmt.Errorf("%w: node reports testnet=%v but configured network is %q", bitcoin.ErrConfig, nodeIsTestnet, network)
	}
	return nil
}
