package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix matches the key layout used by connect-redis.
const DefaultRedisPrefix = "sess:"

// RedisStore reads session documents stored under <prefix><sid>.
type RedisStore struct {
	client  redis.Cmdable
	cookie  CookieConfig
	prefix  string
	timeout time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, cookie CookieConfig, timeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, cookie: cookie, prefix: prefix, timeout: timeout}
}

func (s *RedisStore) Authorize(r *http.Request) (Identity, error) {
	sid, ok := s.cookie.SessionID(r)
	if !ok {
		return Identity{}, ErrNoSession
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	doc, err := s.client.Get(ctx, s.prefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	subject, err := subjectFromDocument(doc)
	if err != nil {
		return Identity{}, err
	}
	return Identity{SubjectID: subject}, nil
}

var _ Authorizer = (*RedisStore)(nil)
