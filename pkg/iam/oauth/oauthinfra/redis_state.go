package oauthinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/oauth"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps pending states in Redis so any node can serve the
// callback. GETDEL makes consumption atomic across nodes.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) oauth.StateStore {
	return &RedisStateStore{rdb: rdb}
}

func stateKey(tenantID kernel.TenantID, state string) string {
	return "oauth:state:" + tenantID.String() + ":" + state
}

func (s *RedisStateStore) Save(ctx context.Context, sess *oauth.StateSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return errx.Wrap(err, "failed to encode oauth state", errx.TypeInternal)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return oauth.ErrInvalidState()
	}
	if err := s.rdb.Set(ctx, stateKey(sess.TenantID, sess.State), payload, ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to save oauth state", errx.TypeUnavailable)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, tenantID kernel.TenantID, state string) (*oauth.StateSession, error) {
	payload, err := s.rdb.GetDel(ctx, stateKey(tenantID, state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oauth.ErrInvalidState()
		}
		return nil, errx.Wrap(err, "failed to consume oauth state", errx.TypeUnavailable)
	}

	var sess oauth.StateSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, errx.Wrap(err, "failed to decode oauth state", errx.TypeInternal)
	}
	if sess.IsExpired() {
		return nil, oauth.ErrInvalidState()
	}
	return &sess, nil
}
