package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in a local map so the in-process broadcast keeps working;
// Redis holds a liveness key and the latest snapshot, both expiring after
// the idle TTL.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.QuestionnaireID(), s.ttl).Err()
}

// Get returns the local session while its liveness key exists. Sessions
// whose key has expired are dropped.
func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	n, err := s.client.Exists(context.Background(), s.key(id)).Result()
	if err == nil && n == 0 {
		s.Delete(id)
		session.Close()
		return nil, false
	}
	return session, true
}

// Sweep evicts local sessions whose liveness key has expired or that have
// been idle since before cutoff, ends their subscriptions and returns how
// many were removed. Redis errors leave the affected sessions in place.
func (s *SessionStore) Sweep(cutoff time.Time) int {
	ctx := context.Background()

	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	if len(ids) == 0 {
		return 0
	}

	pipe := s.client.Pipeline()
	checks := make(map[string]*redis.IntCmd, len(ids))
	for _, id := range ids {
		checks[id] = pipe.Exists(ctx, s.key(id))
	}
	// per-command errors are inspected below
	_, _ = pipe.Exec(ctx)

	var evicted []*app.Session
	s.mu.Lock()
	for id, check := range checks {
		session, ok := s.sessions[id]
		if !ok {
			continue
		}
		n, err := check.Result()
		expired := err == nil && n == 0
		if expired || session.UpdatedAt().Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, session)
		}
	}
	s.mu.Unlock()

	for _, session := range evicted {
		_ = s.client.Del(ctx, s.key(session.ID()), s.snapshotKey(session.ID())).Err()
		session.Close()
	}
	return len(evicted)
}

// Len reports the number of sessions held in this process.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(id), s.snapshotKey(id)).Err()
}

// SaveSnapshot stores the snapshot JSON and refreshes the liveness TTL.
func (s *SessionStore) SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.snapshotKey(snap.ID), raw, s.ttl)
	pipe.Expire(ctx, s.key(snap.ID), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// LoadSnapshot reads the mirrored snapshot, e.g. from another instance.
func (s *SessionStore) LoadSnapshot(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	raw, err := s.client.Get(ctx, s.snapshotKey(id)).Bytes()
	if IsMiss(err) {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *SessionStore) key(id string) string {
	return "assessment:session:" + id
}

func (s *SessionStore) snapshotKey(id string) string {
	return "assessment:session:" + id + ":snapshot"
}
