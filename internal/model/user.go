package model

import "time"

// User is the dealer account as reported by the remote analysis service.
// The portal never stores credentials; the record lives in the login session.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	DealerID string `json:"dealer_id,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Session is an authenticated portal session backed by a remote bearer token.
type Session struct {
	Token     string    `json:"-"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
