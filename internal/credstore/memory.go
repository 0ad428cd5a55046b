package credstore

import (
	"context"
	"sync"
)

// MemoryTier holds the credential in process memory for fast repeated reads.
type MemoryTier struct {
	mu   sync.Mutex
	cred *Credential
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{}
}

func (m *MemoryTier) Name() string { return "memory" }

func (m *MemoryTier) Read(ctx context.Context) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *MemoryTier) Write(ctx context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cred
	m.cred = &c
	return nil
}

func (m *MemoryTier) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}
