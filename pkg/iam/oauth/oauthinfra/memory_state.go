package oauthinfra

import (
	"context"
	"sync"

	"github.com/keyward-io/keyward/pkg/iam/oauth"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// MemoryStateStore is the single-node state store used in development and
// tests.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*oauth.StateSession
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*oauth.StateSession)}
}

func (s *MemoryStateStore) Save(_ context.Context, sess *oauth.StateSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey(sess.TenantID, sess.State)] = sess
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, tenantID kernel.TenantID, state string) (*oauth.StateSession, error) {
	k := stateKey(tenantID, state)

	s.mu.Lock()
	sess, ok := s.states[k]
	if ok {
		delete(s.states, k)
	}
	s.mu.Unlock()

	if !ok || sess.IsExpired() {
		return nil, oauth.ErrInvalidState()
	}
	return sess, nil
}

// Cleanup drops expired sessions that were never consumed.
func (s *MemoryStateStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.states {
		if sess.IsExpired() {
			delete(s.states, k)
		}
	}
}
