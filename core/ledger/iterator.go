package ledger

import (
	"errors"
)

var errIteratorExhausted = errors.New("iterator exhausted")
var errIteratorClosed = errors.New("iterator closed")

type resultsIterator struct {
	results []KV
	pos     int
	closed  bool
}

func (it *resultsIterator) HasNext() bool {
	return !it.closed && it.pos < len(it.results)
}

func (it *resultsIterator) Next() (*KV, error) {
	if it.closed {
		return nil, errIteratorClosed
	}
	if it.pos >= len(it.results) {
		return nil, errIteratorExhausted
	}
	kv := it.results[it.pos]
	it.results[it.pos] = KV{}
	it.pos++
	return &kv, nil
}

func (it *resultsIterator) Close() error {
	it.closed = true
	it.results = nil
	return nil
}

type historyIterator struct {
	entries []KeyModification
	pos     int
	closed  bool
}

func (it *historyIterator) HasNext() bool {
	return !it.closed && it.pos < len(it.entries)
}

func (it *historyIterator) Next() (*KeyModification, error) {
	if it.closed {
		return nil, errIteratorClosed
	}
	if it.pos >= len(it.entries) {
		return nil, errIteratorExhausted
	}
	m := it.entries[it.pos]
	it.pos++
	return &m, nil
}

func (it *historyIterator) Close() error {
	it.closed = true
	it.entries = nil
	return nil
}

// CollectValues drains it into a slice of raw values. limit <= 0 reads all.
// The iterator is closed on return.
func CollectValues(it Iterator, limit int) ([][]byte, error) {
	defer it.Close()
	out := make([][]byte, 0)
	for it.HasNext() {
		if limit > 0 && len(out) >= limit {
			break
		}
		kv, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, kv.Value)
	}
	return out, nil
}
