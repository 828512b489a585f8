package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemforge/api/internal/model"
)

// ErrSessionNotFound is returned when no session exists for an id.
var ErrSessionNotFound = errors.New("session not found")

// SessionRegistry maps chat session ids to their owning provider and
// conversation record.
type SessionRegistry interface {
	Save(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
}

// MemorySessionRegistry keeps sessions in process memory. Sessions are lost
// on restart, matching the single-process deployment.
type MemorySessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{sessions: make(map[string]*model.Session)}
}

func (r *MemorySessionRegistry) Save(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	r.sessions[session.ID] = cloneSession(session)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRegistry) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// cloneSession copies the record so callers appending to History never
// alias the registry's copy.
func cloneSession(s *model.Session) *model.Session {
	clone := *s
	clone.History = append([]model.ChatTurn(nil), s.History...)
	return &clone
}

// RedisSessionRegistry persists sessions in Redis so chat survives restarts
// and multiple API processes can share sessions.
type RedisSessionRegistry struct {
	redis *redis.Client
}

func NewRedisSessionRegistry(redisClient *redis.Client) *RedisSessionRegistry {
	return &RedisSessionRegistry{redis: redisClient}
}

func (r *RedisSessionRegistry) Save(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.redis.Set(ctx, fmt.Sprintf("session:%s", session.ID), data, 24*time.Hour).Err()
}

func (r *RedisSessionRegistry) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := r.redis.Get(ctx, fmt.Sprintf("session:%s", sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
