package secretstore

import "sync"

// Memory is a process-local store. Values are copied on the way in and
// out so callers cannot alias stored bytes.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) String() string { return "memory" }

func (m *Memory) Put(n string, d []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[n] = append([]byte{}, d...)
	return nil
}

func (m *Memory) Get(n string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[n]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, d...), nil
}

func (m *Memory) Delete(n string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[n]; !ok {
		return ErrNotFound
	}
	delete(m.data, n)
	return nil
}

// Len returns the number of stored secrets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
