package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound means no session exists for the given id. Absence is the
// "not authenticated" state, distinct from a store fault.
var ErrNotFound = errors.New("session not found")

// Session is the server-held record binding a request to an identity. Only
// the id/username/role projection ever leaves the server; UpstreamToken is
// collaborator token material and stays internal.
type Session struct {
	ID            string `json:"-"`
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	UpstreamToken string `json:"upstream_token,omitempty"`
}

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: client, ttl: ttl}
}

func key(id string) string {
	return "session:" + id
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// Create stores a new session under a fresh opaque id with a fixed TTL from
// issuance. The session is not observable until the write completes.
func (s *Store) Create(ctx context.Context, sess Session) (*Session, error) {
	return s.create(ctx, sess, s.ttl)
}

func (s *Store) create(ctx context.Context, sess Session, ttl time.Duration) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess.ID = id
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, key(id), data, ttl).Err(); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.redis.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	sess.ID = id
	return &sess, nil
}

// Destroy is idempotent: destroying a missing session is a no-op success.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.redis.Del(ctx, key(id)).Err()
}

// Regenerate issues a new session id carrying the given claims and
// invalidates the old one. Called on every login so a pre-authentication
// session id can never be replayed into an authenticated one (session
// fixation). A positive ttl below the store default shortens the lifetime,
// used when the upstream access token expires first.
func (s *Store) Regenerate(ctx context.Context, oldID string, sess Session, ttl time.Duration) (*Session, error) {
	fresh, err := s.create(ctx, sess, s.EffectiveTTL(ttl))
	if err != nil {
		return nil, err
	}
	if err := s.Destroy(ctx, oldID); err != nil {
		return nil, err
	}
	return fresh, nil
}

// EffectiveTTL clamps a requested lifetime to the store default. Callers use
// it to keep the cookie lifetime in step with the stored session.
func (s *Store) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > s.ttl {
		return s.ttl
	}
	return ttl
}

// Cookie helpers. The cookie carries only the opaque session id.

func SetCookie(w http.ResponseWriter, name, id string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
