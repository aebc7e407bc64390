// Package merkle builds inclusion proofs (C9) for a transaction within a
// block's txid list.
package merkle

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/walletcore/btcsync/internal/model"
)

// BuildProof computes the Merkle path for txHash within the ordered txids
// of one block. If txHash is not present, Position is -1 and Siblings is
// empty: no level is folded.
func BuildProof(txids []string, txHash string) (model.MerkleProof, error) {
	level, err := toLittleEndian(txids)
	if err != nil {
		return model.MerkleProof{}, err
	}
	target, err := toLittleEndianOne(txHash)
	if err != nil {
		return model.MerkleProof{}, err
	}

	position := indexOf(level, target)
	proof := model.MerkleProof{Position: position}
	if position == -1 {
		return proof, nil
	}

	idx := position
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		nextIdx := -1
		for i := 0; i < len(level); i += 2 {
			pairHash := chainhash.DoubleHashB(append(append([]byte{}, level[i]...), level[i+1]...))
			next = append(next, pairHash)
			if i == idx || i+1 == idx {
				var sibling []byte
				if i == idx {
					sibling = level[i+1]
				} else {
					sibling = level[i]
				}
				proof.Siblings = append(proof.Siblings, reverseHex(sibling))
				nextIdx = i / 2
			}
		}
		level = next
		idx = nextIdx
	}

	return proof, nil
}

func toLittleEndian(txids []string) ([][]byte, error) {
	out := make([][]byte, 0, len(txids))
	for _, id := range txids {
		b, err := toLittleEndianOne(id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func toLittleEndianOne(txid string) ([]byte, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("merkle: parse txid %q: %w", txid, err)
	}
	return hash[:], nil
}

func reverseHex(littleEndian []byte) string {
	rev := make([]byte, len(littleEndian))
	for i, b := range littleEndian {
		rev[len(littleEndian)-1-i] = b
	}
	return hex.EncodeToString(rev)
}

func indexOf(level [][]byte, target []byte) int {
	for i, v := range level {
		if string(v) == string(target) {
			return i
		}
	}
	return -1
}
