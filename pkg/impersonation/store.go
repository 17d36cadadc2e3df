package impersonation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
)

const keyPrefix = "impersonation:"

// DefaultTTL bounds a session when none is configured
const DefaultTTL = 30 * time.Minute

// Session is a stored impersonation session
type Session struct {
	Token        string    `json:"token"`
	ActorID      string    `json:"actor_id"`
	TargetUserID string    `json:"target_user_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Store keeps sessions in Redis. A session is stored under its token and the
// actor keeps a pointer to their current token so a new session replaces the
// old one.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session store
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func sessionKey(token string) string {
	return keyPrefix + "session:" + token
}

func actorKey(actorID string) string {
	return keyPrefix + "actor:" + actorID
}

// Create starts a session for actorID acting as targetID, ending any session
// the actor already had
func (s *Store) Create(ctx context.Context, actorID, targetID string) (*Session, error) {
	now := s.now().UTC()
	session := &Session{
		Token:        uuid.NewString(),
		ActorID:      actorID,
		TargetUserID: targetID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	previous, err := s.client.Get(ctx, actorKey(actorID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" {
			pipe.Del(ctx, sessionKey(previous))
		}
		pipe.Set(ctx, sessionKey(session.Token), data, s.ttl)
		pipe.Set(ctx, actorKey(actorID), session.Token, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get returns the session for token, or nil when it is unknown or expired
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Corrupt entries are dropped and treated as missing
		s.client.Del(ctx, sessionKey(token))
		return nil, nil
	}
	return &session, nil
}

// ActiveFor returns the actor's current session, if any
func (s *Store) ActiveFor(ctx context.Context, actorID string) (*Session, error) {
	token, err := s.client.Get(ctx, actorKey(actorID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return s.Get(ctx, token)
}

// Delete ends the actor's session. It reports whether one existed.
func (s *Store) Delete(ctx context.Context, actorID string) (bool, error) {
	token, err := s.client.Get(ctx, actorKey(actorID)).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	deleted, err := s.client.Del(ctx, sessionKey(token), actorKey(actorID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del failed: %w", err)
	}
	return deleted > 0, nil
}

// ResolveImpersonation implements middleware.ImpersonationResolver
func (s *Store) ResolveImpersonation(ctx context.Context, token string) (*auth.ImpersonationGrant, error) {
	session, err := s.Get(ctx, token)
	if err != nil || session == nil {
		return nil, err
	}
	return &auth.ImpersonationGrant{
		ActorID:      session.ActorID,
		TargetUserID: session.TargetUserID,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}
