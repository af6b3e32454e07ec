package executionlog

import (
	"sort"
	"sync"
	"time"

	"github.com/atworkflow/engine/internal/runtime"
)

// MemoryStore is the default, in-process Execution Log.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]*Log
	now  func() time.Time
}

// NewMemoryStore returns an empty in-memory log store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{logs: make(map[string]*Log), now: now}
}

func (s *MemoryStore) LogStart(executionID, workflowID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.logs[executionID]; exists {
		return nil
	}
	s.logs[executionID] = &Log{
		ExecutionID: executionID, WorkflowID: workflowID, WorkflowVersion: version,
		State: StateRunning, StartedAt: s.now(),
	}
	return nil
}

func (s *MemoryStore) LogNode(executionID string, result runtime.NodeExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[executionID]
	if !ok {
		return nil
	}
	log.Results = append(log.Results, result)
	return nil
}

func (s *MemoryStore) LogEnd(executionID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[executionID]
	if !ok {
		return nil
	}
	log.State = state
	now := s.now()
	log.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Get(executionID string) (*Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[executionID]
	if !ok {
		return nil, nil
	}
	return cloneLog(log), nil
}

func (s *MemoryStore) Query(q Query) ([]*Log, error) {
	s.mu.Lock()
	var matches []*Log
	for _, log := range s.logs {
		if q.WorkflowID != "" && log.WorkflowID != q.WorkflowID {
			continue
		}
		if q.State != "" && log.State != q.State {
			continue
		}
		if q.StartedAtFrom != nil && log.StartedAt.Before(*q.StartedAtFrom) {
			continue
		}
		if q.StartedAtTo != nil && log.StartedAt.After(*q.StartedAtTo) {
			continue
		}
		matches = append(matches, cloneLog(log))
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})

	limit := q.effectiveLimit()
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cloneLog(l *Log) *Log {
	c := *l
	c.Results = append([]runtime.NodeExecutionResult(nil), l.Results...)
	return &c
}
