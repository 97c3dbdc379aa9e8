package store

import (
	"errors"
	"fmt"
	"iter"

	"github.com/rosedblabs/rosedb/v2"
)

type RoseDbKeyValueStore struct {
	db *rosedb.DB
}

func NewRoseDbKeyValueStore(path string) (*RoseDbKeyValueStore, error) {
	options := rosedb.DefaultOptions
	options.DirPath = path
	db, err := rosedb.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open rosedb: %w", err)
	}

	return &RoseDbKeyValueStore{
		db: db,
	}, nil
}

func (r *RoseDbKeyValueStore) Set(key, value []byte) error {
	return r.db.Put(key, value)
}

func (r *RoseDbKeyValueStore) Get(key []byte) ([]byte, error) {
	value, err := r.db.Get(key)
	if errors.Is(err, rosedb.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value from rosedb: %w", err)
	}
	return value, nil
}

func (r *RoseDbKeyValueStore) Delete(key []byte) error {
	return r.db.Delete(key)
}

func (r *RoseDbKeyValueStore) Scan(prefix []byte) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		opts := rosedb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := r.db.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if item == nil {
				continue
			}
			if !yield(Entry{Key: item.Key, Value: item.Value}, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}

func (r *RoseDbKeyValueStore) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close rosedb: %w", err)
	}
	return nil
}
