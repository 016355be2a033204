package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"civis/internal/domain"
	"civis/internal/platform/redis"
	"civis/pkg/platform/sentinel"
)

// sessionTTL bounds how long an abandoned session lingers. Redis expiry
// handles cleanup; the authenticator never sweeps.
const sessionTTL = 30 * time.Minute

// RedisSessionStore keeps sessions in Redis so the authenticator can run as
// multiple replicas behind one balancer.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string {
	return "civis:session:" + id
}

func (s *RedisSessionStore) Save(ctx context.Context, session domain.AuthenticationSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), payload, sessionTTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (domain.AuthenticationSession, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.AuthenticationSession{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.AuthenticationSession{}, fmt.Errorf("load session: %w", err)
	}

	var session domain.AuthenticationSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return domain.AuthenticationSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
