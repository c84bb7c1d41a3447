package blob

import (
	"context"
	"io"
	"sync"
)

// Memory is an in-process Storage used by unit tests and the dev server.
// References are synthetic "memory://<key>" URLs. FailUploads forces every
// upload into StateFailed, for exercising the no-write-on-failure contract.
type Memory struct {
	mu          sync.Mutex
	objects     map[string][]byte
	states      map[string]State
	FailUploads bool
	FailErr     error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), states: make(map[string]State)}
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	m.states[key] = StateActive
	m.mu.Unlock()

	if m.FailUploads {
		m.mu.Lock()
		m.states[key] = StateFailed
		m.mu.Unlock()
		if m.FailErr != nil {
			return m.FailErr
		}
		return io.ErrUnexpectedEOF
	}

	data, err := io.ReadAll(r)
	if err != nil {
		m.mu.Lock()
		m.states[key] = StateFailed
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.objects[key] = data
	m.states[key] = StateCompleted
	m.mu.Unlock()
	return nil
}

func (m *Memory) ResolveURL(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrNotFound
	}
	return "memory://" + key, nil
}

// StateOf reports the upload state recorded for a key.
func (m *Memory) StateOf(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key]
}

// Object returns the stored bytes for a completed upload.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
