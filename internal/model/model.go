// Package model defines the domain types shared across the synchronizer.
package model

import "time"

// Network selects the chain parameters used for address encoding.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
	Signet  Network = "signet"
)

// Coin is a single tracked transaction output, spent or unspent.
//
// CHeight of zero marks a coin surfaced from the mempool overlay rather than
// a confirmed block.
type Coin struct {
	CTxID   string
	CIndex  uint32
	Address string
	CValue  uint64
	CHeight uint64
	SpentBy string // spending txid, empty when unspent
	SHeight uint64
}

// Unspent reports whether the coin has not been marked spent.
func (c Coin) Unspent() bool {
	return c.SpentBy == ""
}

// Input is a transaction input as seen on the wire, before prevout resolution.
type Input struct {
	PrevTxID string
	PrevOut  uint32
	Coinbase bool
}

// Output is a transaction output as seen on the wire.
type Output struct {
	Index  uint32
	Value  uint64
	Script []byte
}

// Tx is a parsed transaction in the shape the synchronizer needs: its txid
// (byte-reversed hex, consensus display form) and its inputs/outputs in wire
// order.
type Tx struct {
	TxID    string
	Inputs  []Input
	Outputs []Output
}

// Block is a fetched, parsed block ready for import or revert.
type Block struct {
	Height            uint64
	Hash              string
	PreviousBlockHash string
	Version           int32
	MerkleRoot        string
	Timestamp         time.Time
	Bits              uint32
	Nonce             uint32
	Txs               []Tx
}

// ZeroHash is the all-zero 32-byte hash displayed when the header chain is empty.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// MerkleProof is the result of building an inclusion proof for one transaction.
type MerkleProof struct {
	Siblings []string // byte-reversed hex, in fold order
	Position int      // -1 if the transaction was not found in the block
}
