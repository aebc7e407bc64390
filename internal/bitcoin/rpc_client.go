package bitcoin

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// NodeClient is the subset of btcd's rpcclient.Client the synchronizer
// depends on. Narrowing it to an interface keeps the core testable without
// a live node, the same role RPCClient/RPCMetrics play in the teacher's
// internal/utxo/bitcoin/rpc_client.go.
type NodeClient interface {
	GetInfo() (*btcjson.InfoChainResult, error)
	GetBlockCount() (int64, error)
	GetBlockHash(height int64) (*chainhash.Hash, error)
	GetBlockVerbose(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error)
	GetRawTransactionAsync(txHash *chainhash.Hash) RPCFuture
	GetRawMempool() ([]*chainhash.Hash, error)
	SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error)
	EstimateFee(numBlocks int64) (float64, error)
}

// RPCFuture mirrors btcd rpcclient's FutureGetRawTransactionResult: a
// pending call whose result is collected with Receive. Abstracting it lets
// RPCClient pipeline many in-flight getrawtransaction calls over one
// connection for a block's transaction set, instead of waiting on each
// round trip in turn.
type RPCFuture interface {
	Receive() (*btcutil.Tx, error)
}

// RPCClient is a typed, instrumented wrapper over NodeClient, mirroring the
// metrics shape of the teacher's RPCClient. It records Prometheus metrics
// per call and does no logging.
type RPCClient struct {
	node NodeClient
}

// NewRPCClient builds an instrumented RPC client around a NodeClient.
func NewRPCClient(node NodeClient) *RPCClient {
	return &RPCClient{node: node}
}

func (c *RPCClient) call(operation string, fn func() error) error {
	started := time.Now()
	err := fn()
	observeRPC(operation, err, started)
	return err
}

// GetInfo returns the node's reported network/version info.
func (c *RPCClient) GetInfo() (info *btcjson.InfoChainResult, err error) {
	err = c.call("get_info", func() error {
		info, err = c.node.GetInfo()
		return err
	})
	return info, err
}

// GetBlockCount returns the node's current best height.
func (c *RPCClient) GetBlockCount() (count int64, err error) {
	err = c.call("get_block_count", func() error {
		count, err = c.node.GetBlockCount()
		return err
	})
	return count, err
}

// GetBlockHash returns the hash the node reports at the given height.
func (c *RPCClient) GetBlockHash(height int64) (hash *chainhash.Hash, err error) {
	err = c.call("get_block_hash", func() error {
		hash, err = c.node.GetBlockHash(height)
		return err
	})
	return hash, err
}

// GetBlockVerbose returns block metadata and its ordered txid list.
func (c *RPCClient) GetBlockVerbose(hash *chainhash.Hash) (res *btcjson.GetBlockVerboseResult, err error) {
	err = c.call("get_block_verbose", func() error {
		res, err = c.node.GetBlockVerbose(hash)
		return err
	})
	return res, err
}

// GetRawTransactionBatch fetches every raw transaction in txids, pipelining
// the requests over the node connection rather than waiting on each one in
// turn. Results are returned in the same order as txids.
func (c *RPCClient) GetRawTransactionBatch(txids []*chainhash.Hash) ([]*btcutil.Tx, error) {
	started := time.Now()
	futures := make([]RPCFuture, len(txids))
	for i, id := range txids {
		futures[i] = c.node.GetRawTransactionAsync(id)
	}

	txs := make([]*btcutil.Tx, len(txids))
	var firstErr error
	for i, f := range futures {
		tx, err := f.Receive()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("get raw transaction %s: %w", txids[i], err)
		}
		txs[i] = tx
	}
	observeRPC("get_raw_transaction_batch", firstErr, started)
	if firstErr != nil {
		return nil, firstErr
	}
	return txs, nil
}

// GetRawMempool returns the node's current mempool as a txid list.
func (c *RPCClient) GetRawMempool() (txids []*chainhash.Hash, err error) {
	err = c.call("get_raw_mempool", func() error {
		txids, err = c.node.GetRawMempool()
		return err
	})
	return txids, err
}

// SendRawTransaction broadcasts a raw transaction and returns its txid.
func (c *RPCClient) SendRawTransaction(tx *wire.MsgTx) (txid *chainhash.Hash, err error) {
	err = c.call("send_raw_transaction", func() error {
		txid, err = c.node.SendRawTransaction(tx, false)
		return err
	})
	return txid, err
}

// EstimateFee returns the node's fee estimate for confirmation within
// numBlocks blocks.
func (c *RPCClient) EstimateFee(numBlocks int64) (fee float64, err error) {
	err = c.call("estimate_fee", func() error {
		fee, err = c.node.EstimateFee(numBlocks)
		return err
	})
	return fee, err
}
