// Package profiles holds the identity provider's display data used to enrich tree reads.
package profiles

import (
	"context"
	"sync"

	"github.com/Ramsey-B/willow/pkg/models"
)

// Store records and serves profiles by identity.
type Store interface {
	Put(ctx context.Context, profile models.Profile) error
	GetProfiles(ctx context.Context, identities []string) (map[string]models.Profile, error)
}

// Memory keeps profiles for the life of the process.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewMemory() *Memory {
	return &Memory{profiles: map[string]models.Profile{}}
}

func (m *Memory) Put(_ context.Context, profile models.Profile) error {
	if profile.Identity == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.Identity] = profile
	return nil
}

func (m *Memory) GetProfiles(_ context.Context, identities []string) (map[string]models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.Profile, len(identities))
	for _, identity := range identities {
		if p, ok := m.profiles[identity]; ok {
			out[identity] = p
		}
	}
	return out, nil
}
