package bitcoin

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// liveNodeClient adapts *rpcclient.Client to NodeClient. Two calls need more
// than a passthrough. GetRawTransactionAsync: rpcclient returns a concrete
// future type, which this adapter narrows to the RPCFuture interface so tests
// can substitute a fake pipeline without a live node. GetInfo: rpcclient only
// offers the wallet-flavored getinfo result, so the adapter issues getinfo as
// a raw request and decodes the reply into the chain-flavored result.
type liveNodeClient struct {
	client *rpcclient.Client
}

// NewLiveNodeClient wraps a connected btcd rpcclient.Client for use by RPCClient.
func NewLiveNodeClient(client *rpcclient.Client) NodeClient {
	return &liveNodeClient{client: client}
}

func (n *liveNodeClient) GetInfo() (*btcjson.InfoChainResult, error) {
	raw, err := n.client.RawRequest("getinfo", nil)
	if err != nil {
		return nil, err
	}
	var info btcjson.InfoChainResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (n *liveNodeClient) GetBlockCount() (int64, error) { return n.client.GetBlockCount() }

func (n *liveNodeClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	return n.client.GetBlockHash(height)
}

func (n *liveNodeClient) GetBlockVerbose(hash *chainhash.Hash) (*btcjson.GetBlockVerboseResult, error) {
	return n.client.GetBlockVerbose(hash)
}

func (n *liveNodeClient) GetRawTransactionAsync(txHash *chainhash.Hash) RPCFuture {
	return n.client.GetRawTransactionAsync(txHash)
}

func (n *liveNodeClient) GetRawMempool() ([]*chainhash.Hash, error) { return n.client.GetRawMempool() }

func (n *liveNodeClient) SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error) {
	return n.client.SendRawTransaction(tx, allowHighFees)
}

func (n *liveNodeClient) EstimateFee(numBlocks int64) (float64, error) {
	return n.client.EstimateFee(numBlocks)
}
