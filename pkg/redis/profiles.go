package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ramsey-B/willow/pkg/models"
)

const profileKeyPrefix = "willow:profile:"

// ProfileCache stores identity provider profiles so tree reads can show names and pictures.
type ProfileCache struct {
	client *Client
	ttl    time.Duration
}

func NewProfileCache(client *Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func (p *ProfileCache) Put(ctx context.Context, profile models.Profile) error {
	if profile.Identity == "" {
		return nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return p.client.rdb.Set(ctx, profileKeyPrefix+profile.Identity, payload, p.ttl).Err()
}

func (p *ProfileCache) GetProfiles(ctx context.Context, identities []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(identities))
	if len(identities) == 0 {
		return out, nil
	}

	keys := make([]string, len(identities))
	for i, identity := range identities {
		keys[i] = profileKeyPrefix + identity
	}

	values, err := p.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var profile models.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			p.client.logger.WithContext(ctx).WithError(err).Warnf("dropping unreadable profile for %s", identities[i])
			continue
		}
		out[identities[i]] = profile
	}
	return out, nil
}
