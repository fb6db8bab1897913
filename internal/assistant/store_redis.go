package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore persists sessions as JSON blobs with a TTL, so idle sessions
// expire server-side. Per-session serialization is provided by in-process
// keyed locks; the deployment assumption is one engine process per Redis
// keyspace, matching how turns are routed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer

	mu    sync.Mutex
	locks map[string]*sessionLock

	now func() time.Time
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewRedisStore wraps an existing Redis client. ttl bounds session
// inactivity (each Save refreshes it).
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("assistant: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if tracer == nil {
		tracer = otel.Tracer("assistant.session_store")
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		tracer: tracer,
		locks:  make(map[string]*sessionLock),
		now:    time.Now,
	}
}

var _ SessionStore = (*RedisStore)(nil)

func sessionKey(key string) string {
	return fmt.Sprintf("session:%s", key)
}

func (s *RedisStore) lockFor(key string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *RedisStore) unlockFor(key string, l *sessionLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// Acquire locks the session key in-process and loads (or creates) the
// session from Redis.
func (s *RedisStore) Acquire(ctx context.Context, key string) (*Session, func(), error) {
	l := s.lockFor(key)
	l.mu.Lock()

	sess, err := s.load(ctx, key)
	if err != nil {
		s.unlockFor(key, l)
		return nil, nil, err
	}
	if sess == nil {
		sess = NewSession(key, s.now())
	}
	sess.LastActiveAt = s.now()

	var once sync.Once
	release := func() {
		once.Do(func() { s.unlockFor(key, l) })
	}
	return sess, release, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to decode session: %w", err)
	}
	return &sess, nil
}

// Save writes the session back and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	pruneOffers(sess, s.now())
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.Key), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to persist session: %w", err)
	}
	return nil
}

// Peek loads the stored session without taking the turn lock.
func (s *RedisStore) Peek(ctx context.Context, key string) (*Session, error) {
	sess, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the session blob.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	n, err := s.client.Del(ctx, sessionKey(key)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; Redis expiry replaces the janitor and the client is
// owned by the caller.
func (s *RedisStore) Close() error { return nil }
