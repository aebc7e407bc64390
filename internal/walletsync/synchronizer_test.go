package walletsync

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/events"
	"github.com/walletcore/btcsync/internal/model"
	"github.com/walletcore/btcsync/internal/storage/memory"
)

// --- test scaffolding: a minimal in-memory node simulator ---
//
// Block hashes must be the real double-SHA256 of the 80-byte header, not
// arbitrary strings: the synchronizer compares the node's reported hash
// against the hash it computes itself while importing, so a fake link that
// doesn't match would make every test block look like a fork.

type chainBlock struct {
	height    int64
	hash      string
	prevHash  string
	timestamp int64
	txs       []*wire.MsgTx
	txids     []string
}

// newBlock computes the real header hash for a block built from the given
// fields, so the fake node and the synchronizer's own header cache agree.
func newBlock(t *testing.T, height int64, prevHash, merkleRoot string, timestamp int64, txs []*wire.MsgTx) chainBlock {
	t.Helper()
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.TxHash().String()
	}
	b := model.Block{
		Height:            uint64(height),
		PreviousBlockHash: prevHash,
		MerkleRoot:        merkleRoot,
		Version:           1,
		Timestamp:         time.Unix(timestamp, 0).UTC(),
		Bits:              0x1d00ffff,
	}
	_, hash, err := bitcoin.HeaderBytes(b)
	if err != nil {
		t.Fatalf("HeaderBytes(): %v", err)
	}
	return chainBlock{height: height, hash: hash, prevHash: prevHash, timestamp: timestamp, txs: txs, txids: ids}
}

type fakeFuture struct {
	tx  *btcutil.Tx
	err error
}

func (f fakeFuture) Receive() (*btcutil.Tx, error) { return f.tx, f.err }

type fakeNode struct {
	blocks  []chainBlock // index == height
	byHash  map[string]chainBlock
	mempool []string
	rawTxs  map[string]*wire.MsgTx
	info    *btcjson.InfoChainResult
}

func newFakeNode() *fakeNode {
	return &fakeNode{byHash: make(map[string]chainBlock), rawTxs: make(map[string]*wire.MsgTx)}
}

func (n *fakeNode) addBlock(b chainBlock) {
	n.blocks = append(n.blocks, b)
	n.byHash[b.hash] = b
	for i, tx := range b.txs {
		n.rawTxs[b.txids[i]] = tx
	}
}

// replaceTip simulates a reorg at the current best height: the displaced
// block stays reachable by hash (a node that hasn't pruned it can still
// serve getblock for an orphan), it just drops out of the height index.
func (n *fakeNode) replaceTip(b chainBlock) {
	n.blocks[len(n.blocks)-1] = b
	n.byHash[b.hash] = b
	for i, tx := range b.txs {
		n.rawTxs[b.txids[i]] = tx
	}
}

func (n *fakeNode) GetInfo() (*btcjson.InfoChainResult, error) { return n.info, nil }

func (n *fakeNode) GetBlockCount() (int64, error) {
	return n.blocks[len(n.blocks)-1].height, nil
}

func (n *fakeNode) GetBlockHash(height int64) (*chainhash.Hash, error) {
	for i := range n.blocks {
		if n.blocks[i].height == height {
			return mustHash(n.blocks[i].hash), nil
		}
	}
	return nil, errNotFound("no block at height")
}

func (n *fakeNode) GetBlockVerbose(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	b, ok := n.byHash[hash.String()]
	if !ok {
		return nil, errNotFound("unknown block hash")
	}
	merkle := ""
	if len(b.txids) > 0 {
		merkle = b.txids[0]
	}
	return &btcjson.GetBlockVerboseResult{
		Hash:         b.hash,
		PreviousHash: b.prevHash,
		Height:       b.height,
		Version:      1,
		MerkleRoot:   merkle,
		Bits:         "1d00ffff",
		Nonce:        0,
		Time:         b.timestamp,
		Tx:           b.txids,
	}, nil
}

func (n *fakeNode) GetRawTransactionAsync(txHash *chainhash.Hash) bitcoin.RPCFuture {
	tx, ok := n.rawTxs[txHash.String()]
	if !ok {
		return fakeFuture{err: errNotFound("unknown txid")}
	}
	return fakeFuture{tx: btcutil.NewTx(tx)}
}

func (n *fakeNode) GetRawMempool() ([]*chainhash.Hash, error) {
	out := make([]*chainhash.Hash, len(n.mempool))
	for i, id := range n.mempool {
		out[i] = mustHash(id)
	}
	return out, nil
}

func (n *fakeNode) SendRawTransaction(*wire.MsgTx, bool) (*chainhash.Hash, error) {
	return nil, errNotFound("not implemented")
}

func (n *fakeNode) EstimateFee(int64) (float64, error) { return 0.0001, nil }

type notFoundError string

func (e notFoundError) Error() string { return string(e) }
func errNotFound(msg string) error    { return notFoundError(msg) }

func mustHash(s string) *chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return h
}

// p2pkhScript builds a standard pay-to-pubkey-hash script for a 20-byte hash.
func p2pkhScript(hash160 byte) []byte {
	h := make([]byte, 20)
	for i := range h {
		h[i] = hash160
	}
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, h...)
	script = append(script, 0x88, 0xac)
	return script
}

func p2pkhAddress(t *testing.T, hash160 byte, params *chaincfg.Params) string {
	t.Helper()
	h := make([]byte, 20)
	for i := range h {
		h[i] = hash160
	}
	addr, err := btcutil.NewAddressPubKeyHash(h, params)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}
	return addr.EncodeAddress()
}

func coinbaseTx(payScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32},
	})
	tx.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: payScript})
	return tx
}

func newSynchronizer(node *fakeNode) *Synchronizer {
	rpc := bitcoin.NewRPCClient(node)
	logger := zap.NewNop()
	pub := events.New()
	return New(rpc, memory.New(), &chaincfg.MainNetParams, pub, logger)
}

func TestSynchronizer_GenesisImport(t *testing.T) {
	node := newFakeNode()
	tx := coinbaseTx(p2pkhScript(0xff))
	genesis := newBlock(t, 0, model.ZeroHash, tx.TxHash().String(), 1231006505, []*wire.MsgTx{tx})
	node.addBlock(genesis)

	sync := newSynchronizer(node)
	if err := sync.Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}

	newHeights := 0
	sync.events.OnNewHeight(func() { newHeights++ })

	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp(): %v", err)
	}

	if sync.cache.GetBlockCount() != 1 {
		t.Fatalf("block count = %d, want 1", sync.cache.GetBlockCount())
	}
	if newHeights != 1 {
		t.Fatalf("newHeight emitted %d times, want 1", newHeights)
	}
	if sync.cache.LastBlockHash() != genesis.hash {
		t.Fatalf("last block hash = %s, want %s", sync.cache.LastBlockHash(), genesis.hash)
	}
}

func setupGenesis(t *testing.T, node *fakeNode) chainBlock {
	t.Helper()
	tx := coinbaseTx(p2pkhScript(0xff))
	genesis := newBlock(t, 0, model.ZeroHash, tx.TxHash().String(), 1231006505, []*wire.MsgTx{tx})
	node.addBlock(genesis)
	return genesis
}

func TestSynchronizer_ImportPayToPubKeyHash(t *testing.T) {
	node := newFakeNode()
	genesis := setupGenesis(t, node)

	addrA := p2pkhAddress(t, 0xaa, &chaincfg.MainNetParams)
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}})
	tx.AddTxOut(&wire.TxOut{Value: 50, PkScript: p2pkhScript(0xaa)})

	block1 := newBlock(t, 1, genesis.hash, tx.TxHash().String(), 1231006506, []*wire.MsgTx{tx})
	node.addBlock(block1)

	sync := newSynchronizer(node)
	if err := sync.Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}

	var touched []string
	sync.events.OnTouchedAddress(func(a string) { touched = append(touched, a) })

	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp(): %v", err)
	}

	coins, err := sync.GetCoins(addrA)
	if err != nil {
		t.Fatalf("GetCoins(): %v", err)
	}
	if len(coins) != 1 || coins[0].CValue != 50 || coins[0].CHeight != 1 {
		t.Fatalf("GetCoins(addrA) = %+v, want one coin worth 50 at height 1", coins)
	}
	if len(touched) != 1 || touched[0] != addrA {
		t.Fatalf("touched = %v, want [%s]", touched, addrA)
	}
}

func TestSynchronizer_SpendWithinSameBlock(t *testing.T) {
	node := newFakeNode()
	genesis := setupGenesis(t, node)

	addrA := p2pkhAddress(t, 0xaa, &chaincfg.MainNetParams)
	addrB := p2pkhAddress(t, 0xbb, &chaincfg.MainNetParams)

	tx1 := wire.NewMsgTx(1)
	tx1.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}})
	tx1.AddTxOut(&wire.TxOut{Value: 50, PkScript: p2pkhScript(0xaa)})
	tx1Hash := tx1.TxHash()

	tx2 := wire.NewMsgTx(1)
	tx2.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: tx1Hash, Index: 0}})
	tx2.AddTxOut(&wire.TxOut{Value: 49, PkScript: p2pkhScript(0xbb)})

	block1 := newBlock(t, 1, genesis.hash, tx1Hash.String(), 1231006506, []*wire.MsgTx{tx1, tx2})
	node.addBlock(block1)

	sync := newSynchronizer(node)
	if err := sync.Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}
	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp(): %v", err)
	}

	coinsA, err := sync.GetCoins(addrA)
	if err != nil {
		t.Fatalf("GetCoins(addrA): %v", err)
	}
	if len(coinsA) != 1 || coinsA[0].SpentBy != tx2.TxHash().String() {
		t.Fatalf("GetCoins(addrA) = %+v, want spent by %s", coinsA, tx2.TxHash().String())
	}

	coinsB, err := sync.GetCoins(addrB)
	if err != nil {
		t.Fatalf("GetCoins(addrB): %v", err)
	}
	if len(coinsB) != 1 || coinsB[0].SpentBy != "" {
		t.Fatalf("GetCoins(addrB) = %+v, want one unspent coin", coinsB)
	}
}

func TestSynchronizer_MempoolOverlay(t *testing.T) {
	node := newFakeNode()
	setupGenesis(t, node)

	sync := newSynchronizer(node)
	if err := sync.Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}
	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp(): %v", err)
	}

	addrA := p2pkhAddress(t, 0xaa, &chaincfg.MainNetParams)
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}})
	tx.AddTxOut(&wire.TxOut{Value: 7, PkScript: p2pkhScript(0xaa)})
	txid := tx.TxHash().String()
	node.rawTxs[txid] = tx
	node.mempool = []string{txid}

	if err := sync.UpdateMempool(); err != nil {
		t.Fatalf("UpdateMempool(): %v", err)
	}

	coins, err := sync.GetCoins(addrA)
	if err != nil {
		t.Fatalf("GetCoins(): %v", err)
	}
	if len(coins) != 1 || coins[0].CHeight != 0 || coins[0].CValue != 7 {
		t.Fatalf("GetCoins(addrA) = %+v, want one unconfirmed coin worth 7", coins)
	}
}

func TestSynchronizer_OneDeepReorg(t *testing.T) {
	node := newFakeNode()
	genesis := setupGenesis(t, node)

	addrA := p2pkhAddress(t, 0xaa, &chaincfg.MainNetParams)
	addrC := p2pkhAddress(t, 0xcc, &chaincfg.MainNetParams)

	txOld := wire.NewMsgTx(1)
	txOld.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}})
	txOld.AddTxOut(&wire.TxOut{Value: 50, PkScript: p2pkhScript(0xaa)})

	blockOld := newBlock(t, 1, genesis.hash, txOld.TxHash().String(), 1231006506, []*wire.MsgTx{txOld})
	node.addBlock(blockOld)

	sync := newSynchronizer(node)
	if err := sync.Initialize(); err != nil {
		t.Fatalf("Initialize(): %v", err)
	}
	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("first CatchUp(): %v", err)
	}

	// Simulate a one-deep reorg: the node now reports a different block at
	// height 1, built on the same parent.
	txNew := wire.NewMsgTx(1)
	txNew.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: math.MaxUint32}})
	txNew.AddTxOut(&wire.TxOut{Value: 50, PkScript: p2pkhScript(0xcc)})

	blockNew := newBlock(t, 1, genesis.hash, txNew.TxHash().String(), 1231006599, []*wire.MsgTx{txNew})
	node.replaceTip(blockNew)

	if err := sync.CatchUp(context.Background()); err != nil {
		t.Fatalf("second CatchUp(): %v", err)
	}

	if sync.cache.LastBlockHash() != blockNew.hash {
		t.Fatalf("tip = %s, want %s", sync.cache.LastBlockHash(), blockNew.hash)
	}

	coinsA, err := sync.GetCoins(addrA)
	if err != nil {
		t.Fatalf("GetCoins(addrA): %v", err)
	}
	if len(coinsA) != 0 {
		t.Fatalf("GetCoins(addrA) after reorg = %+v, want empty", coinsA)
	}

	coinsC, err := sync.GetCoins(addrC)
	if err != nil {
		t.Fatalf("GetCoins(addrC): %v", err)
	}
	if len(coinsC) != 1 || coinsC[0].CValue != 50 {
		t.Fatalf("GetCoins(addrC) = %+v, want one coin worth 50", coinsC)
	}
}
