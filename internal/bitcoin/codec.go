// Package bitcoin implements the Bitcoin-specific pieces of the synchronizer:
// the node RPC client, script/address decoding, and header/tx codecs.
package bitcoin

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/walletcore/btcsync/internal/model"
)

// HeaderBytes builds the canonical 80-byte wire header for a block and
// returns it alongside its double-SHA256 block hash in byte-reversed
// (display) hex form.
func HeaderBytes(b model.Block) (raw []byte, blockHash string, err error) {
	prevHash, err := chainhash.NewHashFromStr(b.PreviousBlockHash)
	if err != nil {
		return nil, "", fmt.Errorf("parse previous block hash %q: %w", b.PreviousBlockHash, err)
	}
	merkleRoot, err := chainhash.NewHashFromStr(b.MerkleRoot)
	if err != nil {
		return nil, "", fmt.Errorf("parse merkle root %q: %w", b.MerkleRoot, err)
	}

	hdr := wire.BlockHeader{
		Version:    b.Version,
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleRoot,
		Timestamp:  b.Timestamp,
		Bits:       b.Bits,
		Nonce:      b.Nonce,
	}

	var buf bytes.Buffer
	buf.Grow(wire.MaxBlockHeaderPayload)
	if err := hdr.Serialize(&buf); err != nil {
		return nil, "", fmt.Errorf("serialize header at height %d: %w", b.Height, err)
	}

	hash := hdr.BlockHash()
	return buf.Bytes(), hash.String(), nil
}

// ParseHeader decodes a raw 80-byte wire header (as stored by the header
// chunk cache) back into its block hash, for cache consistency checks.
func ParseHeader(raw []byte) (blockHash string, err error) {
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("deserialize header: %w", err)
	}
	hash := hdr.BlockHash()
	return hash.String(), nil
}

// DoubleSHA256Reversed returns the byte-reversed hex (consensus display
// form) of SHA256(SHA256(data)).
func DoubleSHA256Reversed(data []byte) string {
	return chainhash.DoubleHashH(data).String()
}

// ChainParams maps a configured network name onto btcd chain parameters.
func ChainParams(network model.Network) (*chaincfg.Params, error) {
	switch network {
	case model.Mainnet, "":
		return &chaincfg.MainNetParams, nil
	case model.Testnet:
		return &chaincfg.TestNet3Params, nil
	case model.Regtest:
		return &chaincfg.RegressionNetParams, nil
	case model.Signet:
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("%w: unsupported network %q", ErrConfig, network)
	}
}
