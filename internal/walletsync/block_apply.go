package walletsync

import (
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/model"
)

// direction selects which way applyBlock walks a block's transactions.
type direction int

const (
	directionImport direction = iota
	directionRevert
)

func (d direction) String() string {
	if d == directionImport {
		return "import"
	}
	return "revert"
}

// applyBlock is the block import/revert state machine (C7). Ordering
// follows §4.3: on import, input-side spends are recorded before
// output-side credits; on revert, outputs are undone before inputs.
func (s *Synchronizer) applyBlock(block model.Block, dir direction) error {
	started := time.Now()
	touched := make(map[string]struct{})

	var err error
	switch dir {
	case directionImport:
		err = s.importBlock(block, touched)
	case directionRevert:
		err = s.revertBlock(block, touched)
	}
	if err != nil {
		return err
	}

	inputs, outputs := 0, 0
	for _, tx := range block.Txs {
		inputs += len(tx.Inputs)
		outputs += len(tx.Outputs)
	}
	s.logger.Info("applied block",
		zap.String("direction", dir.String()),
		zap.Uint64("height", block.Height),
		zap.Int("txs", len(block.Txs)),
		zap.Int("inputs", inputs),
		zap.Int("outputs", outputs),
		zap.Duration("elapsed", time.Since(started)),
	)

	s.events.EmitTouchedAddresses(touched)
	return nil
}

func (s *Synchronizer) importBlock(block model.Block, touched map[string]struct{}) error {
	raw, _, err := bitcoin.HeaderBytes(block)
	if err != nil {
		return fmt.Errorf("walletsync: build header for height %d: %w", block.Height, err)
	}
	hexHeader := hex.EncodeToString(raw)
	if err := s.store.PushHeader(hexHeader, block.Height); err != nil {
		return fmt.Errorf("walletsync: push header at %d: %w", block.Height, err)
	}
	if err := s.cache.PushHeader(hexHeader); err != nil {
		return fmt.Errorf("walletsync: cache header at %d: %w", block.Height, err)
	}

	for _, tx := range block.Txs {
		for _, in := range tx.Inputs {
			if in.Coinbase {
				continue
			}
			address, ok, err := s.GetAddress(in.PrevTxID, in.PrevOut)
			if err != nil {
				return fmt.Errorf("walletsync: get address for spent input %s:%d: %w", in.PrevTxID, in.PrevOut, err)
			}
			if !ok {
				continue
			}
			if err := s.store.SetSpent(in.PrevTxID, in.PrevOut, tx.TxID, block.Height); err != nil {
				return fmt.Errorf("walletsync: set spent %s:%d: %w", in.PrevTxID, in.PrevOut, err)
			}
			touched[address] = struct{}{}
		}

		for _, out := range tx.Outputs {
			address := s.decoder.Decode(out.Script)
			if address == "" {
				continue
			}
			if err := s.store.AddCoin(address, tx.TxID, out.Index, out.Value, block.Height); err != nil {
				return fmt.Errorf("walletsync: add coin %s:%d: %w", tx.TxID, out.Index, err)
			}
			touched[address] = struct{}{}
		}
	}
	return nil
}

func (s *Synchronizer) revertBlock(block model.Block, touched map[string]struct{}) error {
	if err := s.store.PopHeader(); err != nil {
		return fmt.Errorf("walletsync: pop header at %d: %w", block.Height, err)
	}
	if err := s.cache.PopHeader(); err != nil {
		return fmt.Errorf("walletsync: cache pop header at %d: %w", block.Height, err)
	}

	for _, tx := range block.Txs {
		for _, out := range tx.Outputs {
			address, ok, err := s.store.GetAddress(tx.TxID, out.Index)
			if err != nil {
				return fmt.Errorf("walletsync: get address for output %s:%d: %w", tx.TxID, out.Index, err)
			}
			if !ok {
				continue
			}
			if err := s.store.RemoveCoin(tx.TxID, out.Index); err != nil {
				return fmt.Errorf("walletsync: remove coin %s:%d: %w", tx.TxID, out.Index, err)
			}
			touched[address] = struct{}{}
		}

		for _, in := range tx.Inputs {
			if in.Coinbase {
				continue
			}
			address, ok, err := s.store.GetAddress(in.PrevTxID, in.PrevOut)
			if err != nil {
				return fmt.Errorf("walletsync: get address for reverted input %s:%d: %w", in.PrevTxID, in.PrevOut, err)
			}
			if !ok {
				continue
			}
			if err := s.store.SetUnspent(in.PrevTxID, in.PrevOut); err != nil {
				return fmt.Errorf("walletsync: set unspent %s:%d: %w", in.PrevTxID, in.PrevOut, err)
			}
			touched[address] = struct{}{}
		}
	}
	return nil
}
