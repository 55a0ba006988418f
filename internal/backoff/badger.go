package backoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "backoff:"

func recordKey(kind string) []byte {
	return []byte(keyPrefix + kind)
}

// BadgerStore хранит записи бэкоффа в BadgerDB, чтобы ожидание переживало
// рестарт процесса.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore открывает базу в dir. Пустой dir: in-memory режим.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Get(_ context.Context, kind string) (Record, bool, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(kind))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get backoff %s: %w", kind, err)
	}
	return rec, true, nil
}

func (s *BadgerStore) Put(_ context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal backoff %s: %w", rec.Kind, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Kind), b)
	})
}

func (s *BadgerStore) Delete(_ context.Context, kind string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(kind))
	})
}
