package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryBackend keeps objects in process memory. It is meant for local
// development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryBackend(bucket string) *MemoryBackend {
	return &MemoryBackend{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (m *MemoryBackend) EnsureBucket(context.Context) error { return nil }

func (m *MemoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Bucket() string { return m.bucket }
