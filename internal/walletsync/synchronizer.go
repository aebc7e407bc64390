// Package walletsync implements the synchronizer driver (C12), the
// catch-up state machine (C6) and block import/revert (C7) that sit on top
// of the header cache, storage driver, mempool overlay and event publisher.
package walletsync

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/clock"
	"github.com/walletcore/btcsync/internal/events"
	"github.com/walletcore/btcsync/internal/headerchain"
	"github.com/walletcore/btcsync/internal/mempool"
	"github.com/walletcore/btcsync/internal/model"
	"github.com/walletcore/btcsync/internal/storage"
)

// pollInterval is the delay between main-loop iterations (§4.7).
const pollInterval = 5 * time.Second

// Synchronizer owns the catch-up loop, the mempool overlay refresh, and the
// event fan-out that follows both. Run is meant to execute on its own
// goroutine, in the teacher's FollowerIngesterService.Run idiom.
type Synchronizer struct {
	rpc     *bitcoin.RPCClient
	store   storage.Store
	cache   *headerchain.Cache
	decoder *bitcoin.ScriptDecoder
	events  *events.Publisher
	mempool *mempool.Overlay
	logger  *zap.Logger
}

// New wires a Synchronizer from its collaborators. cache is populated from
// storage.GetAllHeaders during Initialize.
func New(rpc *bitcoin.RPCClient, store storage.Store, params *chaincfg.Params, pub *events.Publisher, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		rpc:     rpc,
		store:   store,
		cache:   headerchain.New(),
		decoder: bitcoin.NewScriptDecoder(params),
		events:  pub,
		mempool: mempool.New(),
		logger:  logger.Named("synchronizer"),
	}
}

// Initialize prepares storage and replays its header log into the in-memory
// chunk cache.
func (s *Synchronizer) Initialize() error {
	if err := s.store.Initialize(); err != nil {
		return fmt.Errorf("walletsync: initialize storage: %w", err)
	}
	headers, err := s.store.GetAllHeaders()
	if err != nil {
		return fmt.Errorf("walletsync: load header log: %w", err)
	}
	for _, h := range headers {
		if err := s.cache.PushHeader(h); err != nil {
			return fmt.Errorf("walletsync: replay header log: %w", err)
		}
	}
	return nil
}

// Run executes the 5-second catchUp -> updateMempool -> sleep main
// iteration until ctx is canceled. Errors from either stage are logged and
// swallowed, matching §4.7 and §7's propagation policy.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.CatchUp(ctx); err != nil {
			s.logger.Error("catch up failed", zap.Error(err))
		}

		if ctx.Err() != nil {
			return nil
		}

		if err := s.UpdateMempool(); err != nil {
			s.logger.Error("update mempool failed", zap.Error(err))
		}

		if err := clock.SleepWithContext(ctx, pollInterval); err != nil {
			return nil
		}
	}
}

// CatchUp runs the state machine in §4.2 until the local tip matches the
// node's, checking the cancellation flag between blocks.
func (s *Synchronizer) CatchUp(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		nodeCount, err := s.rpc.GetBlockCount()
		if err != nil {
			return fmt.Errorf("walletsync: get block count: %w", err)
		}
		nodeHash, err := s.rpc.GetBlockHash(nodeCount)
		if err != nil {
			return fmt.Errorf("walletsync: get block hash at %d: %w", nodeCount, err)
		}
		if nodeHash.String() == s.cache.LastBlockHash() {
			return nil
		}

		// The next height to examine is normally one past the local tip, but
		// when the node's chain didn't grow (a reorg at the existing tip
		// height) that would overshoot the node's best height, so clamp to
		// whichever is lower.
		nextHeight := int64(s.cache.GetBlockCount())
		if nodeCount < nextHeight {
			nextHeight = nodeCount
		}
		nextHash, err := s.rpc.GetBlockHash(nextHeight)
		if err != nil {
			return fmt.Errorf("walletsync: get block hash at height %d: %w", nextHeight, err)
		}
		nextBlock, err := s.getFullBlock(nextHash)
		if err != nil {
			return err
		}

		if nextBlock.PreviousBlockHash == s.cache.LastBlockHash() {
			if err := s.applyBlock(nextBlock, directionImport); err != nil {
				return err
			}
		} else {
			tipHash, err := chainhash.NewHashFromStr(s.cache.LastBlockHash())
			if err != nil {
				return fmt.Errorf("walletsync: parse local tip hash: %w", err)
			}
			tipBlock, err := s.getFullBlock(tipHash)
			if err != nil {
				return err
			}
			if err := s.applyBlock(tipBlock, directionRevert); err != nil {
				return err
			}
		}

		s.events.EmitNewHeight()
		s.mempool = mempool.New()
	}
}

// getFullBlock implements the §4.2 helper: genesis is synthesized with an
// empty transaction list; every other block fetches every raw transaction
// in one pipelined batch and parses each.
func (s *Synchronizer) getFullBlock(hash *chainhash.Hash) (model.Block, error) {
	verbose, err := s.rpc.GetBlockVerbose(hash)
	if err != nil {
		return model.Block{}, fmt.Errorf("walletsync: get block %s: %w", hash, err)
	}

	if verbose.Height == 0 {
		block, err := bitcoin.BuildBlock(verbose, nil)
		if err != nil {
			return model.Block{}, err
		}
		block.PreviousBlockHash = model.ZeroHash
		return block, nil
	}

	txids := make([]*chainhash.Hash, len(verbose.Tx))
	for i, id := range verbose.Tx {
		h, err := chainhash.NewHashFromStr(id)
		if err != nil {
			return model.Block{}, fmt.Errorf("walletsync: parse txid %q: %w", id, err)
		}
		txids[i] = h
	}

	rawTxs, err := s.rpc.GetRawTransactionBatch(txids)
	if err != nil {
		return model.Block{}, fmt.Errorf("walletsync: fetch block %s transactions: %w", hash, err)
	}

	txs := make([]model.Tx, len(rawTxs))
	for i, tx := range rawTxs {
		txs[i] = bitcoin.ConvertTx(tx)
	}

	return bitcoin.BuildBlock(verbose, txs)
}

// FetchTx implements mempool.RawTxFetcher for the overlay's on-demand
// per-transaction fetch during updateMempool.
func (s *Synchronizer) FetchTx(txID string) (model.Tx, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return model.Tx{}, fmt.Errorf("walletsync: parse mempool txid %q: %w", txID, err)
	}
	raw, err := s.rpc.GetRawTransactionBatch([]*chainhash.Hash{hash})
	if err != nil {
		return model.Tx{}, err
	}
	return bitcoin.ConvertTx(raw[0]), nil
}

// UpdateMempool runs one mempool reconciliation cycle (C8/§4.4).
func (s *Synchronizer) UpdateMempool() error {
	txids, err := s.rpc.GetRawMempool()
	if err != nil {
		return fmt.Errorf("walletsync: get raw mempool: %w", err)
	}
	ids := make([]string, len(txids))
	for i, id := range txids {
		ids[i] = id.String()
	}

	touched, err := s.mempool.Update(ids, s, addressStore{s.store}, s.decoder.Decode)
	if err != nil {
		return err
	}
	s.events.EmitTouchedAddresses(touched)
	return nil
}

// GetAddress implements the overlay-first lookup in §4.5.
func (s *Synchronizer) GetAddress(txID string, index uint32) (string, bool, error) {
	if address, ok := s.mempool.GetAddress(txID, index); ok {
		return address, true, nil
	}
	return s.store.GetAddress(txID, index)
}

// GetCoins implements the overlaid coin list in §4.5.
func (s *Synchronizer) GetCoins(address string) ([]model.Coin, error) {
	coins, err := s.store.GetCoins(address)
	if err != nil {
		return nil, err
	}
	coins = append(coins, s.mempool.OverlayCoins(address)...)
	return s.mempool.ApplySpent(coins), nil
}

// EstimateFee delegates to the node RPC client.
func (s *Synchronizer) EstimateFee(numBlocks int64) (float64, error) {
	return s.rpc.EstimateFee(numBlocks)
}

// GetInfo delegates to the node RPC client, used at startup to check the
// configured network against what the node reports.
func (s *Synchronizer) GetInfo() (*btcjson.InfoChainResult, error) {
	return s.rpc.GetInfo()
}

// addressStore adapts storage.Store to mempool.AddressStore.
type addressStore struct {
	store storage.Store
}

func (a addressStore) GetAddress(txID string, index uint32) (string, bool, error) {
	return a.store.GetAddress(txID, index)
}
