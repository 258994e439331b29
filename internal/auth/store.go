package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

var ErrSessionNotFound = errors.New("auth: session not found")

// Store keeps authenticated portal sessions in memory. Authentication itself
// is delegated to the remote analysis service; the store only maps portal
// session IDs to the bearer tokens it issued.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*model.Session
	defaultTTL time.Duration
}

func NewStore(defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = 12 * time.Hour
	}
	return &Store{
		sessions:   make(map[string]*model.Session),
		defaultTTL: defaultTTL,
	}
}

// Create registers a session for a freshly obtained bearer token and returns
// the portal session ID.
func (s *Store) Create(token string, user model.User) (string, *model.Session) {
	id := newSessionID()
	now := time.Now()
	session := &model.Session{
		Token:     token,
		User:      user,
		ExpiresAt: tokenExpiry(token, now.Add(s.defaultTTL)),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	return id, session
}

// Get returns the session if it exists and has not expired.
func (s *Store) Get(id string) (*model.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if session.Expired(time.Now()) {
		s.Delete(id)
		return nil, false
	}
	return session, true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// PruneExpired drops expired sessions and returns how many went away.
func (s *Store) PruneExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Source returns a token source bound to the session. Lookups happen per
// call, so logout immediately cuts off outgoing requests.
func (s *Store) Source(id string) oauth2.TokenSource {
	return &sessionTokenSource{store: s, id: id}
}

type sessionTokenSource struct {
	store *Store
	id    string
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	session, ok := ts.store.Get(ts.id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &oauth2.Token{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		Expiry:      session.ExpiresAt,
	}, nil
}

// StaticSource wraps a raw bearer token. Used during login, before a
// session exists to bind a Source to.
func StaticSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func newSessionID() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(b)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// remote service signed the token; the portal only needs the deadline.
func tokenExpiry(token string, fallback time.Time) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fallback
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
