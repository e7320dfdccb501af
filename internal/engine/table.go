package engine

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/internal/provider"
)

// IteratorTable maps randomly generated 32-bit handles to active row
// iterators. The handle is all the script ever holds; the iterator itself
// stays host-side. Handles are unique within a request and a collision is
// a hard error rather than a retry.
type IteratorTable struct {
	mu    sync.Mutex
	iters map[uint32]provider.RowIterator
}

// NewIteratorTable creates an empty table.
func NewIteratorTable() *IteratorTable {
	return &IteratorTable{iters: make(map[uint32]provider.RowIterator)}
}

// Add registers an iterator under a fresh random handle.
func (t *IteratorTable) Add(it provider.RowIterator) (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, errors.Internal("generate iterator handle", err)
	}
	handle := binary.BigEndian.Uint32(buf[:])

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.iters[handle]; exists {
		return 0, errors.HandleClash()
	}
	t.iters[handle] = it
	return handle, nil
}

// Get looks up an iterator by handle.
func (t *IteratorTable) Get(handle uint32) (provider.RowIterator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.iters[handle]
	return it, ok
}

// Remove unregisters and returns the iterator, if present.
func (t *IteratorTable) Remove(handle uint32) (provider.RowIterator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.iters[handle]
	if ok {
		delete(t.iters, handle)
	}
	return it, ok
}

// Len reports the number of active iterators.
func (t *IteratorTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.iters)
}

// CloseAll closes every remaining iterator. Used when the engine exits
// with iterators the script never finished.
func (t *IteratorTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for handle, it := range t.iters {
		_ = it.Close()
		delete(t.iters, handle)
	}
}
