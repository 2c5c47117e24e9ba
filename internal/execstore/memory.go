package execstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, used in tests and for the dev-mode
// façade where no Postgres is configured.
type MemoryStore struct {
	mu sync.RWMutex
	records map[string]WorkflowExecution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]WorkflowExecution)}
}

func (s *MemoryStore) Save(ctx context.Context, rec WorkflowExecution) (WorkflowExecution, error) {
	if rec.Visibility == "" {
		rec.Visibility = VisibilityPrivate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, id, organizationID string) (WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.OrganizationID != organizationID {
		return WorkflowExecution{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context, organizationID string, filter ListFilter) ([]WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []WorkflowExecution
	for _, rec := range s.records {
		if rec.OrganizationID != organizationID {
			continue
		}
		if filter.WorkflowID != "" && rec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.DeploymentID != "" && rec.DeploymentID != filter.DeploymentID {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
			return matched[i].EndedAt.After(matched[j].EndedAt)
	})

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}
