package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// StateBackend abstracts the persistent key-value store for ledger state.
type StateBackend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Storage is the LevelDB-backed store. When a cipher is configured every
// value is sealed with AES-256-GCM before it reaches disk.
type Storage struct {
	db     *leveldb.DB
	cipher *Cipher
}

// NewStorage opens (or creates) a LevelDB database at path. dek may be nil
// to store values in clear.
func NewStorage(path string, dek []byte) (*Storage, error) {
	c, err := NewCipher(dek)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, cipher: c}, nil
}

// NewMemStorage returns a Storage backed by an in-memory LevelDB.
func NewMemStorage(dek []byte) (*Storage, error) {
	c, err := NewCipher(dek)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, cipher: c}, nil
}

// Get retrieves a value by key from LevelDB.
func (s *Storage) Get(key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.cipher.Open(raw)
}

// Has reports whether key is present.
func (s *Storage) Has(key string) (bool, error) {
	return s.db.Has([]byte(key), nil)
}

// Put stores a key-value pair in LevelDB.
func (s *Storage) Put(key string, value []byte) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), sealed, nil)
}

// Batch accumulates writes that are applied atomically by Write.
type Batch struct {
	b      *leveldb.Batch
	cipher *Cipher
	err    error
}

// NewBatch starts an empty batch.
func (s *Storage) NewBatch() *Batch {
	return &Batch{b: new(leveldb.Batch), cipher: s.cipher}
}

// Put queues a write. The first sealing error is reported by Write.
func (b *Batch) Put(key string, value []byte) {
	if b.err != nil {
		return
	}
	sealed, err := b.cipher.Seal(value)
	if err != nil {
		b.err = err
		return
	}
	b.b.Put([]byte(key), sealed)
}

// Delete queues a deletion.
func (b *Batch) Delete(key string) {
	b.b.Delete([]byte(key))
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return b.b.Len()
}

// Write applies the batch atomically.
func (s *Storage) Write(b *Batch) error {
	if b.err != nil {
		return b.err
	}
	return s.db.Write(b.b, nil)
}

// Scan calls fn for every key with the given prefix in key order until fn
// returns false. fn owns the value slice it receives.
func (s *Storage) Scan(prefix string, fn func(key string, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		value, err := s.open(iter.Value())
		if err != nil {
			return err
		}
		if !fn(string(iter.Key()), value) {
			break
		}
	}
	return iter.Error()
}

// ScanReverse is Scan in descending key order.
func (s *Storage) ScanReverse(prefix string, fn func(key string, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		value, err := s.open(iter.Value())
		if err != nil {
			return err
		}
		if !fn(string(iter.Key()), value) {
			break
		}
	}
	return iter.Error()
}

// open decrypts an iterator value into a fresh slice; the iterator reuses
// its buffer on every step.
func (s *Storage) open(raw []byte) ([]byte, error) {
	if !s.cipher.Enabled() {
		return append([]byte(nil), raw...), nil
	}
	return s.cipher.Open(raw)
}

// Encrypted reports whether values are sealed at rest.
func (s *Storage) Encrypted() bool {
	return s.cipher.Enabled()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying LevelDB instance
func (s *Storage) DB() *leveldb.DB {
	return s.db
}
