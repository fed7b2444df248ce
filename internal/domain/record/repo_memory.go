package record

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo keeps records in process memory.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[uuid.UUID]*StoredRecord
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[uuid.UUID]*StoredRecord)}
}

func (m *MemoryRepo) Save(_ context.Context, s *StoredRecord) error {
	cp := *s
	m.mu.Lock()
	m.store[s.DocumentID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepo) GetByDocument(_ context.Context, documentID uuid.UUID) (*StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, mrn string, limit, offset int) ([]*StoredRecord, int, error) {
	m.mu.RLock()
	var matched []*StoredRecord
	for _, s := range m.store {
		if s.PatientMRN == mrn {
			cp := *s
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].DocumentID.String() < matched[j].DocumentID.String()
	})

	total := len(matched)
	if offset >= total {
		return []*StoredRecord{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// Len returns the number of stored records.
func (m *MemoryRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
