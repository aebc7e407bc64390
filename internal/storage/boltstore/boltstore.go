// Package boltstore implements storage.Store on top of an embedded bbolt
// database. Bucket layout follows the bucket-per-concern pattern: a
// height-ordered header log, plus a coin bucket keyed by (txID, index) with
// a secondary address index for range scans.
package boltstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/walletcore/btcsync/internal/model"
)

var (
	bucketHeaders = []byte("headers")
	bucketCoins   = []byte("coins")
	bucketAddrIdx = []byte("coins_by_address")
)

// Store persists the header log and coin index in a single bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt database at dbPath, creating its parent
// directory if necessary.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("boltstore: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Initialize creates the buckets used by the store. Idempotent.
func (s *Store) Initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketHeaders, bucketCoins, bucketAddrIdx} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
}

func heightKey(height uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, height)
	return k
}

func coinKey(txID string, index uint32) []byte {
	k := make([]byte, len(txID)+4)
	copy(k, txID)
	binary.BigEndian.PutUint32(k[len(txID):], index)
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// PushHeader appends a hex-encoded header keyed by its height.
func (s *Store) PushHeader(hexHeader string, height uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHeaders).Put(heightKey(height), []byte(hexHeader))
	})
}

// PopHeader removes the header at the greatest stored height.
func (s *Store) PopHeader() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		c := b.Cursor()
		k, _ := c.Last()
		if k == nil {
			return fmt.Errorf("boltstore: pop header: chain is empty")
		}
		return b.Delete(k)
	})
}

// GetAllHeaders returns every stored header in ascending height order.
func (s *Store) GetAllHeaders() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHeaders).ForEach(func(_, v []byte) error {
			out = append(out, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get all headers: %w", err)
	}
	return out, nil
}

// GetAddress reports the owning address of a coin, if any.
func (s *Store) GetAddress(txID string, index uint32) (string, bool, error) {
	var coin model.Coin
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCoins).Get(coinKey(txID, index))
		if data == nil {
			return nil
		}
		found = true
		return decodeGob(data, &coin)
	})
	if err != nil {
		return "", false, fmt.Errorf("boltstore: get address: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return coin.Address, true, nil
}

// AddCoin inserts or overwrites a coin row and its address index entry.
func (s *Store) AddCoin(address, txID string, index uint32, value, height uint64) error {
	coin := model.Coin{
		CTxID:   txID,
		CIndex:  index,
		Address: address,
		CValue:  value,
		CHeight: height,
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := encodeGob(coin)
		if err != nil {
			return fmt.Errorf("boltstore: encode coin: %w", err)
		}
		key := coinKey(txID, index)
		if err := tx.Bucket(bucketCoins).Put(key, data); err != nil {
			return fmt.Errorf("boltstore: put coin: %w", err)
		}
		idxKey := append([]byte(address+"\x00"), key...)
		if err := tx.Bucket(bucketAddrIdx).Put(idxKey, []byte{}); err != nil {
			return fmt.Errorf("boltstore: put address index: %w", err)
		}
		return nil
	})
}

// RemoveCoin deletes a coin row and its address index entry.
func (s *Store) RemoveCoin(txID string, index uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		coinsBucket := tx.Bucket(bucketCoins)
		key := coinKey(txID, index)
		data := coinsBucket.Get(key)
		if data == nil {
			return nil
		}
		var coin model.Coin
		if err := decodeGob(data, &coin); err != nil {
			return fmt.Errorf("boltstore: decode coin on remove: %w", err)
		}
		if err := coinsBucket.Delete(key); err != nil {
			return fmt.Errorf("boltstore: delete coin: %w", err)
		}
		idxKey := append([]byte(coin.Address+"\x00"), key...)
		if err := tx.Bucket(bucketAddrIdx).Delete(idxKey); err != nil {
			return fmt.Errorf("boltstore: delete address index: %w", err)
		}
		return nil
	})
}

func (s *Store) mutateCoin(txID string, index uint32, mutate func(*model.Coin)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCoins)
		key := coinKey(txID, index)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("boltstore: coin %s:%d not found", txID, index)
		}
		var coin model.Coin
		if err := decodeGob(data, &coin); err != nil {
			return fmt.Errorf("boltstore: decode coin: %w", err)
		}
		mutate(&coin)
		encoded, err := encodeGob(coin)
		if err != nil {
			return fmt.Errorf("boltstore: encode coin: %w", err)
		}
		return b.Put(key, encoded)
	})
}

// SetSpent marks a coin spent by spentBy at spentHeight.
func (s *Store) SetSpent(txID string, index uint32, spentBy string, spentHeight uint64) error {
	return s.mutateCoin(txID, index, func(c *model.Coin) {
		c.SpentBy = spentBy
		c.SHeight = spentHeight
	})
}

// SetUnspent clears a coin's spent marker, used when the block that spent
// the coin is reverted.
func (s *Store) SetUnspent(txID string, index uint32) error {
	return s.mutateCoin(txID, index, func(c *model.Coin) {
		c.SpentBy = ""
		c.SHeight = 0
	})
}

// GetCoins returns every coin owned by address via a prefix scan of the
// address index.
func (s *Store) GetCoins(address string) ([]model.Coin, error) {
	prefix := []byte(address + "\x00")
	var out []model.Coin
	err := s.db.View(func(tx *bbolt.Tx) error {
		coinsBucket := tx.Bucket(bucketCoins)
		c := tx.Bucket(bucketAddrIdx).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			coinKeyPart := k[len(prefix):]
			data := coinsBucket.Get(coinKeyPart)
			if data == nil {
				continue
			}
			var coin model.Coin
			if err := decodeGob(data, &coin); err != nil {
				return fmt.Errorf("boltstore: decode coin in scan: %w", err)
			}
			out = append(out, coin)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get coins: %w", err)
	}
	return out, nil
}
