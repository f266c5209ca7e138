package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicledger/core/storage"
)

const (
	valuePrefix   = "ns/"
	historyPrefix = "hist/"
	keySep        = "\x00"
)

// WorldState is the versioned key-value state of a channel. Every value
// carries the number of the block that last wrote it; that number is the
// version checked by MVCC validation.
type WorldState struct {
	store *storage.Storage
}

// HistoryEntry is one link of a key's version chain.
type HistoryEntry struct {
	TxID      string    `json:"txId"`
	BlockNum  uint64    `json:"blockNum"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     []byte    `json:"value,omitempty"`
}

// Write is one entry of a transaction's write set.
type Write struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	IsDelete  bool   `json:"isDelete,omitempty"`
}

// Commit describes a validated transaction whose writes must be applied.
type Commit struct {
	BlockNum  uint64
	TxID      string
	Timestamp time.Time
	Writes    []Write
}

// New wraps a storage backend.
func New(store *storage.Storage) *WorldState {
	return &WorldState{store: store}
}

// ValidateKey rejects keys that would break the storage layout.
func ValidateKey(namespace, key string) error {
	if namespace == "" || strings.ContainsAny(namespace, "/"+keySep) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	if key == "" {
		return errors.New("key must not be empty")
	}
	if strings.Contains(key, keySep) {
		return fmt.Errorf("key %q contains a null byte", key)
	}
	return nil
}

func valueKey(namespace, key string) string {
	return valuePrefix + namespace + "/" + key
}

func historyKey(namespace, key string, blockNum uint64) string {
	return fmt.Sprintf("%s%s/%s%s%020d", historyPrefix, namespace, key, keySep, blockNum)
}

func encodeValue(version uint64, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, version)
	copy(buf[8:], value)
	return buf
}

func decodeValue(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, errors.New("corrupt state value")
	}
	return binary.BigEndian.Uint64(raw[:8]), raw[8:], nil
}

// Get returns the committed value and version for a key. found is false
// when the key is absent; the version of an absent key is 0.
func (ws *WorldState) Get(namespace, key string) (value []byte, version uint64, found bool, err error) {
	raw, err := ws.store.Get(valueKey(namespace, key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	version, value, err = decodeValue(raw)
	if err != nil {
		return nil, 0, false, err
	}
	return value, version, true, nil
}

// Version returns only the version of a key (0 when absent).
func (ws *WorldState) Version(namespace, key string) (uint64, error) {
	_, v, _, err := ws.Get(namespace, key)
	return v, err
}

// Scan visits every live key of a namespace in key order.
func (ws *WorldState) Scan(namespace string, fn func(key string, value []byte, version uint64) bool) error {
	prefix := valuePrefix + namespace + "/"
	var decodeErr error
	err := ws.store.Scan(prefix, func(k string, raw []byte) bool {
		version, value, err := decodeValue(raw)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(strings.TrimPrefix(k, prefix), value, version)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// History returns the version chain of a key, oldest first.
func (ws *WorldState) History(namespace, key string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	var decodeErr error
	err := ws.store.Scan(historyPrefix+namespace+"/"+key+keySep, func(_ string, raw []byte) bool {
		var e HistoryEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			decodeErr = err
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, decodeErr
}

// Apply queues the writes of a commit, and their history links, into b.
// Nothing is visible until the caller writes the batch.
func (ws *WorldState) Apply(b *storage.Batch, c Commit) error {
	for _, w := range c.Writes {
		if err := ValidateKey(w.Namespace, w.Key); err != nil {
			return err
		}
		if w.IsDelete {
			b.Delete(valueKey(w.Namespace, w.Key))
		} else {
			b.Put(valueKey(w.Namespace, w.Key), encodeValue(c.BlockNum, w.Value))
		}
		entry, err := json.Marshal(HistoryEntry{
			TxID:      c.TxID,
			BlockNum:  c.BlockNum,
			Timestamp: c.Timestamp.UTC(),
			IsDelete:  w.IsDelete,
			Value:     w.Value,
		})
		if err != nil {
			return err
		}
		b.Put(historyKey(w.Namespace, w.Key, c.BlockNum), entry)
	}
	return nil
}

// Store exposes the backing storage.
func (ws *WorldState) Store() *storage.Storage {
	return ws.store
}
