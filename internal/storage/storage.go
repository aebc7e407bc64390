// Package storage defines the persistence contract (C5) the synchronizer
// drives: the header log and the coin index. Two reference drivers are
// provided, memory and boltstore; a production driver (Postgres/Mongo-class)
// can satisfy the same interface without touching the core.
package storage

import "github.com/walletcore/btcsync/internal/model"

// Store is the capability set the synchronizer needs from a storage driver.
// At-least-once write semantics are required; idempotence at the
// coin-identity level is the caller's responsibility (§6).
type Store interface {
	// Initialize prepares schema/collections. Idempotent.
	Initialize() error

	// Header log.
	PushHeader(hexHeader string, height uint64) error
	PopHeader() error
	GetAllHeaders() ([]string, error)

	// Coin index.
	GetAddress(txID string, index uint32) (string, bool, error)
	AddCoin(address, txID string, index uint32, value, height uint64) error
	RemoveCoin(txID string, index uint32) error
	SetSpent(txID string, index uint32, spentBy string, spentHeight uint64) error
	SetUnspent(txID string, index uint32) error
	GetCoins(address string) ([]model.Coin, error)
}
