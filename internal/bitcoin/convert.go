package bitcoin

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/walletcore/btcsync/internal/model"
	"github.com/walletcore/btcsync/pkg/safe"
)

// ParseBits parses a block's compact-difficulty bits field (hex string) into
// its 32-bit wire form.
func ParseBits(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: parse bits %q: %v", ErrDecode, value, err)
	}
	return uint32(parsed), nil
}

func timeUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// BtcToSatoshis converts a BTC amount to satoshis with overflow checks.
// Carried from the teacher's conversion helper (internal/utxo/bitcoin/convert.go).
func BtcToSatoshis(value float64) (uint64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if amt < 0 {
		return 0, fmt.Errorf("%w: negative amount %d", ErrDecode, amt)
	}
	return safe.Uint64(int64(amt))
}

// ConvertTx turns a parsed wire transaction into the domain shape the
// synchronizer applies to the coin index.
func ConvertTx(tx *btcutil.Tx) model.Tx {
	msg := tx.MsgTx()
	out := model.Tx{
		TxID:    tx.Hash().String(),
		Inputs:  make([]model.Input, 0, len(msg.TxIn)),
		Outputs: make([]model.Output, 0, len(msg.TxOut)),
	}
	for _, in := range msg.TxIn {
		zeroHash := chainhash.Hash{}
		coinbase := in.PreviousOutPoint.Hash == zeroHash && in.PreviousOutPoint.Index == math.MaxUint32
		out.Inputs = append(out.Inputs, model.Input{
			PrevTxID: in.PreviousOutPoint.Hash.String(),
			PrevOut:  in.PreviousOutPoint.Index,
			Coinbase: coinbase,
		})
	}
	for i, txOut := range msg.TxOut {
		out.Outputs = append(out.Outputs, model.Output{
			Index:  uint32(i),
			Value:  uint64(txOut.Value),
			Script: txOut.PkScript,
		})
	}
	return out
}

// BuildBlock maps a verbose block result plus its parsed transactions into
// a model.Block ready for import/revert.
func BuildBlock(verbose *btcjson.GetBlockVerboseResult, txs []model.Tx) (model.Block, error) {
	height, err := safe.Uint64(verbose.Height)
	if err != nil {
		return model.Block{}, fmt.Errorf("block height overflow: %w", err)
	}
	bits, err := ParseBits(verbose.Bits)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %d bits: %w", verbose.Height, err)
	}

	return model.Block{
		Height:            height,
		Hash:              verbose.Hash,
		PreviousBlockHash: verbose.PreviousHash,
		Version:           int32(verbose.Version),
		MerkleRoot:        verbose.MerkleRoot,
		Timestamp:         timeUnix(verbose.Time),
		Bits:              bits,
		Nonce:             verbose.Nonce,
		Txs:               txs,
	}, nil
}
