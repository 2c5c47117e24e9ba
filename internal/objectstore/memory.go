package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local runs, backed
// by a map instead of a cloud SDK.
type MemoryStore struct {
	mu sync.RWMutex
	data map[string][]byte
	meta map[string]Metadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
		meta: make(map[string]Metadata),
	}
}

func (m *MemoryStore) Put(ctx context.Context, orgID, executionID, mimeType, filename string, data io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(data, MaxFileSizeBytes+1))
	if err != nil {
		return "", fmt.Errorf("objectstore: read: %w", err)
	}
	if len(buf) > MaxFileSizeBytes {
		return "", fmt.Errorf("objectstore: object exceeds %d bytes", MaxFileSizeBytes)
	}
	id := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = buf
	m.meta[id] = Metadata{
		ID: id,
		CreatedAt: time.Now(),
		OrganizationID: orgID,
		ExecutionID: executionID,
		Filename: filename,
		MimeType: mimeType,
	}
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (io.ReadCloser, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.data[id]
	if !ok {
		return nil, "", &ErrNotFound{ID: id}
	}
	meta := m.meta[id]
	return io.NopCloser(bytes.NewReader(buf)), meta.MimeType, nil
}

func (m *MemoryStore) Presign(ctx context.Context, id string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return "", &ErrNotFound{ID: id}
	}
	ttl = clampTTL(ttl)
	return fmt.Sprintf("mem://%s?expires=%d", key(id), time.Now().Add(ttl).Unix()), nil
}
