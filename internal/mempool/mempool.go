// Package mempool implements the volatile mempool overlay (C8): an
// additive-only view of unconfirmed transactions, discarded and rebuilt on
// every newHeight.
package mempool

import (
	"fmt"

	"github.com/walletcore/btcsync/internal/model"
)

type outPoint struct {
	txID  string
	index uint32
}

// Overlay holds the four mappings described in §3: processed txids,
// unconfirmed spends, a reverse output->address index, and unconfirmed
// coins grouped by address.
type Overlay struct {
	txIDs map[string]struct{}
	spent map[outPoint]string
	addrs map[outPoint]string
	coins map[string]map[outPoint]uint64
}

// New builds an empty overlay.
func New() *Overlay {
	return &Overlay{
		txIDs: make(map[string]struct{}),
		spent: make(map[outPoint]string),
		addrs: make(map[outPoint]string),
		coins: make(map[string]map[outPoint]uint64),
	}
}

// AddressStore is the subset of storage.Store the overlay needs to resolve
// spent coin coordinates it cannot resolve from its own output index.
type AddressStore interface {
	GetAddress(txID string, index uint32) (string, bool, error)
}

// RawTxFetcher decodes a raw mempool transaction. walletsync.Synchronizer
// satisfies it with its FetchTx method, built on the node RPC client and
// bitcoin.ConvertTx.
type RawTxFetcher interface {
	FetchTx(txID string) (model.Tx, error)
}

// Update runs one mempool reconciliation cycle: every txid reported by the
// node that has not already been processed this cycle is fetched, parsed,
// and folded into the overlay's mappings. It returns the set of addresses
// newly touched by this cycle so the caller can emit touchedAddress events.
func (o *Overlay) Update(txIDs []string, fetch RawTxFetcher, store AddressStore, decode func([]byte) string) (map[string]struct{}, error) {
	touched := make(map[string]struct{})
	pending := make(map[outPoint]struct{})

	for _, txID := range txIDs {
		if _, seen := o.txIDs[txID]; seen {
			continue
		}
		tx, err := fetch.FetchTx(txID)
		if err != nil {
			return nil, fmt.Errorf("mempool: fetch tx %s: %w", txID, err)
		}
		o.txIDs[txID] = struct{}{}

		for _, in := range tx.Inputs {
			if in.Coinbase {
				continue
			}
			key := outPoint{txID: in.PrevTxID, index: in.PrevOut}
			o.spent[key] = txID
			pending[key] = struct{}{}
		}

		for _, out := range tx.Outputs {
			address := decode(out.Script)
			if address == "" {
				continue
			}
			key := outPoint{txID: txID, index: out.Index}
			o.addrs[key] = address
			if o.coins[address] == nil {
				o.coins[address] = make(map[outPoint]uint64)
			}
			o.coins[address][key] = out.Value
			touched[address] = struct{}{}
		}
	}

	for key := range pending {
		if address, ok := o.addrs[key]; ok {
			touched[address] = struct{}{}
			continue
		}
		address, ok, err := store.GetAddress(key.txID, key.index)
		if err != nil {
			return nil, fmt.Errorf("mempool: resolve spent coin %s:%d: %w", key.txID, key.index, err)
		}
		if !ok {
			continue
		}
		touched[address] = struct{}{}
	}

	return touched, nil
}

// GetAddress consults the overlay's reverse output index first, per the
// query overlay semantics in §4.5.
func (o *Overlay) GetAddress(txID string, index uint32) (string, bool) {
	address, ok := o.addrs[outPoint{txID: txID, index: index}]
	return address, ok
}

// OverlayCoins returns the unconfirmed coins the overlay holds for address,
// with cHeight = 0 and the spent marker applied if the coin is also spent
// within this cycle.
func (o *Overlay) OverlayCoins(address string) []model.Coin {
	var out []model.Coin
	for key, value := range o.coins[address] {
		coin := model.Coin{
			CTxID:   key.txID,
			CIndex:  key.index,
			Address: address,
			CValue:  value,
			CHeight: 0,
		}
		if spentBy, ok := o.spent[key]; ok {
			coin.SpentBy = spentBy
		}
		out = append(out, coin)
	}
	return out
}

// ApplySpent overlays the mempool's spent marker onto a storage-sourced coin
// list, per §4.5: any coin whose (cTxId, cIndex) appears in the overlay's
// spent mapping is reported spent even though storage has not caught up.
func (o *Overlay) ApplySpent(coins []model.Coin) []model.Coin {
	for i := range coins {
		key := outPoint{txID: coins[i].CTxID, index: coins[i].CIndex}
		if spentBy, ok := o.spent[key]; ok {
			coins[i].SpentBy = spentBy
		}
	}
	return coins
}

