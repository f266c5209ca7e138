package block

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"civicledger/core/storage"
)

const (
	blockPrefix = "block/"
	txIndexKey  = "block_tx/"
	heightKey   = "meta/height"
	headHashKey = "meta/head"
	genesisTxID = "genesis"
)

// ErrBlockNotFound is returned for unknown block numbers or tx ids.
var ErrBlockNotFound = errors.New("block not found")

// Journal persists the hash-chained sequence of blocks.
type Journal struct {
	store *storage.Storage

	mu     sync.RWMutex
	height uint64 // number of blocks, genesis included
	head   string // hash of the last block
}

// OpenJournal loads the chain tip from storage.
func OpenJournal(store *storage.Storage) (*Journal, error) {
	j := &Journal{store: store}
	raw, err := store.Get(heightKey)
	if errors.Is(err, storage.ErrNotFound) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	h, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt chain height: %w", err)
	}
	head, err := store.Get(headHashKey)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	j.height = h
	j.head = string(head)
	return j, nil
}

func numberKey(n uint64) string {
	return fmt.Sprintf("%s%020d", blockPrefix, n)
}

// Height returns the number of committed blocks.
func (j *Journal) Height() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.height
}

// Head returns the hash of the last block, empty before genesis.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.head
}

// NextNumber returns the number the next appended block will get.
func (j *Journal) NextNumber() uint64 {
	return j.Height()
}

// Append links blk to the chain tip and queues it into batch. The in-memory
// tip advances only through Advance, once the batch is durable.
func (j *Journal) Append(batch *storage.Batch, blk *Block) error {
	j.mu.RLock()
	blk.Number = j.height
	blk.PrevHash = j.head
	j.mu.RUnlock()

	blk.BlockID = blk.ComputeID()
	data, err := blk.Serialize()
	if err != nil {
		return err
	}
	batch.Put(numberKey(blk.Number), data)
	if blk.TxID != "" {
		batch.Put(txIndexKey+blk.TxID, []byte(strconv.FormatUint(blk.Number, 10)))
	}
	batch.Put(heightKey, []byte(strconv.FormatUint(blk.Number+1, 10)))
	batch.Put(headHashKey, []byte(blk.BlockID.String()))
	return nil
}

// Advance moves the in-memory tip past blk.
func (j *Journal) Advance(blk *Block) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.height = blk.Number + 1
	j.head = blk.BlockID.String()
}

// Get loads a block by number.
func (j *Journal) Get(n uint64) (*Block, error) {
	data, err := j.store.Get(numberKey(n))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// GetByTxID loads the block that recorded txID.
func (j *Journal) GetByTxID(txID string) (*Block, error) {
	raw, err := j.store.Get(txIndexKey + txID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, err
	}
	return j.Get(n)
}

// HasTx reports whether txID was already recorded.
func (j *Journal) HasTx(txID string) (bool, error) {
	return j.store.Has(txIndexKey + txID)
}

// ListRecent returns up to max blocks, newest first.
func (j *Journal) ListRecent(max int) ([]*Block, error) {
	var blocks []*Block
	var decodeErr error
	err := j.store.ScanReverse(blockPrefix, func(_ string, value []byte) bool {
		if len(blocks) >= max {
			return false
		}
		blk, err := Deserialize(value)
		if err != nil {
			decodeErr = err
			return false
		}
		blocks = append(blocks, blk)
		return true
	})
	if err != nil {
		return nil, err
	}
	return blocks, decodeErr
}

// Verify walks the chain and checks every link and header hash.
func (j *Journal) Verify() error {
	prev := ""
	var n uint64
	var verr error
	err := j.store.Scan(blockPrefix, func(_ string, value []byte) bool {
		blk, err := Deserialize(value)
		if err != nil {
			verr = err
			return false
		}
		if blk.Number != n {
			verr = fmt.Errorf("block %d out of sequence (expected %d)", blk.Number, n)
			return false
		}
		if blk.PrevHash != prev {
			verr = fmt.Errorf("block %d: broken link", blk.Number)
			return false
		}
		if blk.ComputeID() != blk.BlockID {
			verr = fmt.Errorf("block %d: header hash mismatch", blk.Number)
			return false
		}
		prev = blk.BlockID.String()
		n++
		return true
	})
	if err != nil {
		return err
	}
	return verr
}

// Genesis returns the block that opens a channel.
func Genesis(channel string, configHash string) *Block {
	return &Block{
		Channel:        channel,
		TxID:           genesisTxID,
		Function:       "genesis",
		DataHash:       configHash,
		ValidationCode: Valid,
	}
}
