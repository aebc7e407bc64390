// Package storagetest holds a conformance suite run against every
// storage.Store implementation, mirroring the teacher's habit of a shared
// repository integration suite reused per backend.
package storagetest

import (
	"testing"

	"github.com/walletcore/btcsync/internal/storage"
)

// Run exercises the full storage.Store contract against a fresh store
// built by newStore. Call it once per driver from that driver's own test
// file so go test attributes failures to the right package.
func Run(t *testing.T, newStore func() storage.Store) {
	t.Helper()

	t.Run("header log", func(t *testing.T) {
		s := newStore()
		if err := s.Initialize(); err != nil {
			t.Fatalf("Initialize(): %v", err)
		}

		if err := s.PushHeader("aa", 0); err != nil {
			t.Fatalf("PushHeader(0): %v", err)
		}
		if err := s.PushHeader("bb", 1); err != nil {
			t.Fatalf("PushHeader(1): %v", err)
		}

		headers, err := s.GetAllHeaders()
		if err != nil {
			t.Fatalf("GetAllHeaders(): %v", err)
		}
		if len(headers) != 2 || headers[0] != "aa" || headers[1] != "bb" {
			t.Fatalf("GetAllHeaders() = %v, want [aa bb]", headers)
		}

		if err := s.PopHeader(); err != nil {
			t.Fatalf("PopHeader(): %v", err)
		}
		headers, err = s.GetAllHeaders()
		if err != nil {
			t.Fatalf("GetAllHeaders() after pop: %v", err)
		}
		if len(headers) != 1 || headers[0] != "aa" {
			t.Fatalf("GetAllHeaders() after pop = %v, want [aa]", headers)
		}
	})

	t.Run("coin lifecycle", func(t *testing.T) {
		s := newStore()
		if err := s.Initialize(); err != nil {
			t.Fatalf("Initialize(): %v", err)
		}

		const txID = "tx1"
		if err := s.AddCoin("addrA", txID, 0, 100, 10); err != nil {
			t.Fatalf("AddCoin(): %v", err)
		}

		address, ok, err := s.GetAddress(txID, 0)
		if err != nil {
			t.Fatalf("GetAddress(): %v", err)
		}
		if !ok || address != "addrA" {
			t.Fatalf("GetAddress() = (%q, %v), want (addrA, true)", address, ok)
		}

		if err := s.SetSpent(txID, 0, "tx2", 11); err != nil {
			t.Fatalf("SetSpent(): %v", err)
		}
		coins, err := s.GetCoins("addrA")
		if err != nil {
			t.Fatalf("GetCoins(): %v", err)
		}
		if len(coins) != 1 || coins[0].SpentBy != "tx2" {
			t.Fatalf("GetCoins() after SetSpent = %+v, want one coin spent by tx2", coins)
		}

		if err := s.SetUnspent(txID, 0); err != nil {
			t.Fatalf("SetUnspent(): %v", err)
		}
		coins, err = s.GetCoins("addrA")
		if err != nil {
			t.Fatalf("GetCoins() after SetUnspent: %v", err)
		}
		if len(coins) != 1 || coins[0].SpentBy != "" {
			t.Fatalf("GetCoins() after SetUnspent = %+v, want unspent coin", coins)
		}

		if err := s.RemoveCoin(txID, 0); err != nil {
			t.Fatalf("RemoveCoin(): %v", err)
		}
		_, ok, err = s.GetAddress(txID, 0)
		if err != nil {
			t.Fatalf("GetAddress() after remove: %v", err)
		}
		if ok {
			t.Fatal("GetAddress() after RemoveCoin still reports the coin present")
		}
	})

	t.Run("unknown coin lookups", func(t *testing.T) {
		s := newStore()
		if err := s.Initialize(); err != nil {
			t.Fatalf("Initialize(): %v", err)
		}
		_, ok, err := s.GetAddress("nope", 0)
		if err != nil {
			t.Fatalf("GetAddress() for unknown coin: %v", err)
		}
		if ok {
			t.Fatal("GetAddress() reported an unknown coin present")
		}
		coins, err := s.GetCoins("nobody")
		if err != nil {
			t.Fatalf("GetCoins() for unknown address: %v", err)
		}
		if len(coins) != 0 {
			t.Fatalf("GetCoins() for unknown address = %v, want empty", coins)
		}
	})
}
