package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

// Memory is an in-process KV backend used by tests and tooling.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) KVGet(key []byte, out interface{}) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[string(key)]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[string(key)] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) KVHas(key []byte) (bool, error) {
	m.mu.RLock()
	_, ok := m.data[string(key)]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) KVDelete(key []byte) error {
	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}
