package workflowstore

import (
	"fmt"
	"sync"

	"github.com/atworkflow/engine/internal/workflow"
)

// MemoryStore is the default, in-process workflow repository.
type MemoryStore struct {
	mu       sync.RWMutex
	byKey    map[string]workflow.Description // "id@version"
	latestOf map[string]int
}

// NewMemoryStore returns an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]workflow.Description), latestOf: make(map[string]int)}
}

func key(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

func (s *MemoryStore) Save(desc workflow.Description) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key(desc.Metadata.ID, desc.Metadata.Version)] = desc
	if desc.Metadata.Version > s.latestOf[desc.Metadata.ID] {
		s.latestOf[desc.Metadata.ID] = desc.Metadata.Version
	}
	return nil
}

func (s *MemoryStore) Get(id string, version int) (*workflow.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.byKey[key(id, version)]
	if !ok {
		return nil, ErrNotFound
	}
	return &desc, nil
}

func (s *MemoryStore) Latest(id string) (*workflow.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.latestOf[id]
	if !ok {
		return nil, ErrNotFound
	}
	desc := s.byKey[key(id, version)]
	return &desc, nil
}

func (s *MemoryStore) ListByTriggerType(triggerType string) ([]workflow.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Description
	for id, version := range s.latestOf {
		desc := s.byKey[key(id, version)]
		if desc.Trigger.Type == triggerType {
			out = append(out, desc)
		}
	}
	return out, nil
}
