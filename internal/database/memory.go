package database

import (
	"context"
	"sync"
)

// MemoryStorage keeps cells in process memory. It is the default medium
// for bench targets and tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	cells map[Key]uint32
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{cells: make(map[Key]uint32)}
}

func (m *MemoryStorage) Load(ctx context.Context) ([]Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cells := make([]Cell, 0, len(m.cells))
	for key, value := range m.cells {
		cells = append(cells, Cell{Key: key, Value: value})
	}
	return cells, nil
}

func (m *MemoryStorage) Store(cell Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cells[cell.Key] = cell.Value
	return nil
}

func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cells = make(map[Key]uint32)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Len returns the number of persisted cells.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cells)
}
