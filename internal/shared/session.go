package shared

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when the request carries no valid session.
var ErrNoSession = errors.New("shared: no session")

// SessionManager orchestrates cookie based sessions backed by Redis. The
// core never reads cookies itself; handlers resolve a person id through
// the manager and pass it down as a plain argument.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Issue creates a session for the person and sets the cookie.
func (sm *SessionManager) Issue(ctx context.Context, w http.ResponseWriter, personID int64) (string, error) {
	id := uuid.NewString()
	if err := sm.client.Set(ctx, sm.redisKey(id), strconv.FormatInt(personID, 10), sm.ttl); err.Err() != nil {
		return "", err.Err()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sm.ttl / time.Second),
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Resolve returns the person id for the request's session cookie.
func (sm *SessionManager) Resolve(ctx context.Context, r *http.Request) (int64, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return 0, ErrNoSession
	}
	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNoSession
		}
		return 0, err
	}
	personID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	// Sliding expiry: active sessions stay alive.
	_ = sm.client.Expire(ctx, sm.redisKey(cookie.Value), sm.ttl).Err()
	return personID, nil
}

// Destroy removes the session and clears the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(sm.cookieName)
	if err == nil {
		if err := sm.client.Del(ctx, sm.redisKey(cookie.Value)).Err(); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (sm *SessionManager) redisKey(id string) string {
	return "melodium:session:" + id
}
