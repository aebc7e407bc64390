// Package headerchain implements the in-memory header-chunk cache (C4):
// the header chain partitioned into fixed-size, protocol-native chunks.
package headerchain

import (
	"encoding/hex"
	"fmt"

	"github.com/walletcore/btcsync/internal/bitcoin"
	"github.com/walletcore/btcsync/internal/model"
)

// ChunkSize is the number of headers per chunk, matching the difficulty
// retarget interval so a chunk can be handed to a client verbatim.
const ChunkSize = 2016

// headerHexLen is the hex length of one 80-byte header.
const headerHexLen = 160

// RangeError reports an out-of-bounds header or chunk lookup (§7 RangeError).
type RangeError struct {
	Op  string
	Idx int
	Len int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0,%d)", e.Op, e.Idx, e.Len)
}

// Cache holds the header chain as a sequence of fixed-size hex chunks.
type Cache struct {
	chunks        []string
	counts        []int
	lastBlockHash string
}

// New builds an empty cache; its last block hash is the zero hash.
func New() *Cache {
	return &Cache{lastBlockHash: model.ZeroHash}
}

// PushHeader appends one hex-encoded 80-byte header to the chain and
// recomputes the last block hash.
func (c *Cache) PushHeader(hexHeader string) error {
	if len(c.chunks) == 0 || c.counts[len(c.counts)-1] == ChunkSize {
		c.chunks = append(c.chunks, "")
		c.counts = append(c.counts, 0)
	}
	last := len(c.chunks) - 1
	c.chunks[last] += hexHeader
	c.counts[last]++
	return c.updateLastBlockHash()
}

// PopHeader removes the last header from the chain. Dropping the last
// header of the last chunk drops the chunk itself.
func (c *Cache) PopHeader() error {
	if len(c.chunks) == 0 {
		return c.updateLastBlockHash()
	}
	last := len(c.chunks) - 1
	c.chunks[last] = c.chunks[last][:len(c.chunks[last])-headerHexLen]
	c.counts[last]--
	if c.counts[last] == 0 {
		c.chunks = c.chunks[:last]
		c.counts = c.counts[:last]
	}
	return c.updateLastBlockHash()
}

// GetBlockCount returns the total number of headers held.
func (c *Cache) GetBlockCount() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// GetHeader returns the hex header at the given global height.
func (c *Cache) GetHeader(i int) (string, error) {
	total := c.GetBlockCount()
	if i < 0 || i >= total {
		return "", &RangeError{Op: "GetHeader", Idx: i, Len: total}
	}
	chunkIdx := i / ChunkSize
	within := i % ChunkSize
	start := within * headerHexLen
	return c.chunks[chunkIdx][start : start+headerHexLen], nil
}

// GetChunk returns the full hex string of chunk i, suitable for handing to
// a client verbatim as a protocol frame.
func (c *Cache) GetChunk(i int) (string, error) {
	if i < 0 || i >= len(c.chunks) {
		return "", &RangeError{Op: "GetChunk", Idx: i, Len: len(c.chunks)}
	}
	return c.chunks[i], nil
}

// LastBlockHash returns the double-SHA256, byte-reversed hex of the last
// header, or the zero hash if the chain is empty.
func (c *Cache) LastBlockHash() string {
	return c.lastBlockHash
}

func (c *Cache) updateLastBlockHash() error {
	total := c.GetBlockCount()
	if total == 0 {
		c.lastBlockHash = model.ZeroHash
		return nil
	}
	hexHeader, err := c.GetHeader(total - 1)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(hexHeader)
	if err != nil {
		return fmt.Errorf("decode cached header: %w", err)
	}
	hash, err := bitcoin.ParseHeader(raw)
	if err != nil {
		return err
	}
	c.lastBlockHash = hash
	return nil
}
