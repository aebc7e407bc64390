package mempool

import (
	"fmt"
	"testing"

	"github.com/walletcore/btcsync/internal/model"
)

type fakeFetcher struct {
	txs map[string]model.Tx
}

func (f fakeFetcher) FetchTx(txID string) (model.Tx, error) {
	return f.txs[txID], nil
}

type fakeAddressStore struct {
	addrs map[string]string
}

func (f fakeAddressStore) GetAddress(txID string, index uint32) (string, bool, error) {
	addr, ok := f.addrs[fmt.Sprintf("%s:%d", txID, index)]
	return addr, ok, nil
}

func decodeIsValue(script []byte) string {
	if len(script) == 0 {
		return ""
	}
	return string(script)
}

func TestOverlay_UpdateTracksOutputsAndSpends(t *testing.T) {
	overlay := New()

	fetcher := fakeFetcher{txs: map[string]model.Tx{
		"tx1": {
			TxID: "tx1",
			Outputs: []model.Output{
				{Index: 0, Value: 50, Script: []byte("addrA")},
			},
		},
	}}

	touched, err := overlay.Update([]string{"tx1"}, fetcher, fakeAddressStore{}, decodeIsValue)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, ok := touched["addrA"]; !ok {
		t.Fatalf("touched = %v, want addrA present", touched)
	}

	coins := overlay.OverlayCoins("addrA")
	if len(coins) != 1 || coins[0].CValue != 50 || coins[0].CHeight != 0 {
		t.Fatalf("OverlayCoins() = %+v, want one unconfirmed coin worth 50", coins)
	}

	address, ok := overlay.GetAddress("tx1", 0)
	if !ok || address != "addrA" {
		t.Fatalf("GetAddress() = (%q, %v), want (addrA, true)", address, ok)
	}
}

func TestOverlay_SkipsAlreadyProcessedTx(t *testing.T) {
	overlay := New()
	calls := 0
	fetcher := countingFetcher{fakeFetcher{txs: map[string]model.Tx{
		"tx1": {TxID: "tx1"},
	}}, &calls}

	if _, err := overlay.Update([]string{"tx1"}, fetcher, fakeAddressStore{}, decodeIsValue); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := overlay.Update([]string{"tx1"}, fetcher, fakeAddressStore{}, decodeIsValue); err != nil {
		t.Fatalf("Update() second call error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("FetchTx called %d times, want 1", calls)
	}
}

type countingFetcher struct {
	fakeFetcher
	calls *int
}

func (c countingFetcher) FetchTx(txID string) (model.Tx, error) {
	*c.calls++
	return c.fakeFetcher.FetchTx(txID)
}

func TestOverlay_ApplySpentOverlaysStorageCoins(t *testing.T) {
	overlay := New()
	fetcher := fakeFetcher{txs: map[string]model.Tx{
		"tx2": {
			TxID: "tx2",
			Inputs: []model.Input{
				{PrevTxID: "tx1", PrevOut: 0},
			},
		},
	}}

	if _, err := overlay.Update([]string{"tx2"}, fetcher, fakeAddressStore{addrs: map[string]string{}}, decodeIsValue); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	coins := []model.Coin{{CTxID: "tx1", CIndex: 0, Address: "addrA", CValue: 100}}
	coins = overlay.ApplySpent(coins)
	if coins[0].SpentBy != "tx2" {
		t.Fatalf("ApplySpent() did not mark coin spent: %+v", coins[0])
	}
}
