// Package memory implements an in-process Store (C5) backed by plain maps.
// It is the reference driver used by the test suite and by ephemeral nodes
// that do not need to survive a restart.
package memory

import (
	"fmt"
	"sync"

	"github.com/walletcore/btcsync/internal/model"
)

type coinKey struct {
	txID  string
	index uint32
}

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	headers []string
	coins   map[coinKey]*model.Coin
	byAddr  map[string]map[coinKey]struct{}
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		coins:  make(map[coinKey]*model.Coin),
		byAddr: make(map[string]map[coinKey]struct{}),
	}
}

// Initialize prepares the store's internal maps. Idempotent.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coins == nil {
		s.coins = make(map[coinKey]*model.Coin)
	}
	if s.byAddr == nil {
		s.byAddr = make(map[string]map[coinKey]struct{})
	}
	return nil
}

func (s *Store) PushHeader(hexHeader string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, hexHeader)
	return nil
}

func (s *Store) PopHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return fmt.Errorf("storage: pop header: chain is empty")
	}
	s.headers = s.headers[:len(s.headers)-1]
	return nil
}

func (s *Store) GetAllHeaders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.headers))
	copy(out, s.headers)
	return out, nil
}

func (s *Store) GetAddress(txID string, index uint32) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coin, ok := s.coins[coinKey{txID, index}]
	if !ok {
		return "", false, nil
	}
	return coin.Address, true, nil
}

func (s *Store) AddCoin(address, txID string, index uint32, value, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := coinKey{txID, index}
	s.coins[key] = &model.Coin{
		CTxID:   txID,
		CIndex:  index,
		Address: address,
		CValue:  value,
		CHeight: height,
	}
	if s.byAddr[address] == nil {
		s.byAddr[address] = make(map[coinKey]struct{})
	}
	s.byAddr[address][key] = struct{}{}
	return nil
}

func (s *Store) RemoveCoin(txID string, index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := coinKey{txID, index}
	coin, ok := s.coins[key]
	if !ok {
		return nil
	}
	delete(s.coins, key)
	delete(s.byAddr[coin.Address], key)
	return nil
}

func (s *Store) SetSpent(txID string, index uint32, spentBy string, spentHeight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coin, ok := s.coins[coinKey{txID, index}]
	if !ok {
		return fmt.Errorf("storage: set spent: coin %s:%d not found", txID, index)
	}
	coin.SpentBy = spentBy
	coin.SHeight = spentHeight
	return nil
}

func (s *Store) SetUnspent(txID string, index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coin, ok := s.coins[coinKey{txID, index}]
	if !ok {
		return fmt.Errorf("storage: set unspent: coin %s:%d not found", txID, index)
	}
	coin.SpentBy = ""
	coin.SHeight = 0
	return nil
}

func (s *Store) GetCoins(address string) ([]model.Coin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.byAddr[address]
	out := make([]model.Coin, 0, len(keys))
	for key := range keys {
		out = append(out, *s.coins[key])
	}
	return out, nil
}
