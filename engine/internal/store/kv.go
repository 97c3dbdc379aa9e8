package store

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"
)

var ErrKeyNotFound = errors.New("key not found")

type Entry struct {
	Key   []byte
	Value []byte
}

type KeyValueStore interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Scan yields the entries whose key starts with prefix, in key order.
	Scan(prefix []byte) iter.Seq2[Entry, error]
	io.Closer
}

// InMemoryKeyValueStore iterates in key order, like rosedb.
type InMemoryKeyValueStore struct {
	data  map[string][]byte
	mutex *sync.RWMutex
}

func NewInMemoryKeyValueStore() *InMemoryKeyValueStore {
	return &InMemoryKeyValueStore{
		data:  make(map[string][]byte),
		mutex: &sync.RWMutex{},
	}
}

func (m *InMemoryKeyValueStore) Set(key, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[string(key)] = bytes.Clone(value)
	return nil
}

func (m *InMemoryKeyValueStore) Get(key []byte) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (m *InMemoryKeyValueStore) Delete(key []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, string(key))
	return nil
}

func (m *InMemoryKeyValueStore) Scan(prefix []byte) iter.Seq2[Entry, error] {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	entries := make([]Entry, 0, len(keys))
	sort.Strings(keys)
	for _, k := range keys {
		entries = append(entries, Entry{Key: []byte(k), Value: bytes.Clone(m.data[k])})
	}
	m.mutex.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *InMemoryKeyValueStore) Close() error {
	return nil
}
