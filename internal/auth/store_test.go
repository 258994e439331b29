package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzr8/dealer_go_portal/internal/model"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dealer-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(time.Hour)

	id, session := store.Create("opaque-token", model.User{ID: "u1", Username: "dealer1"})
	assert.NotEmpty(t, id)
	assert.Equal(t, "dealer1", session.User.Username)
	// opaque token falls back to the default TTL
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "opaque-token", got.Token)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_ExpiryFromJWT(t *testing.T) {
	store := NewStore(time.Hour)
	exp := time.Now().Add(30 * time.Minute)

	_, session := store.Create(signedToken(t, exp), model.User{ID: "u1"})
	assert.WithinDuration(t, exp, session.ExpiresAt, 2*time.Second)
}

func TestStore_ExpiredSessionGone(t *testing.T) {
	store := NewStore(time.Hour)

	id, _ := store.Create(signedToken(t, time.Now().Add(-time.Minute)), model.User{ID: "u1"})
	_, ok := store.Get(id)
	assert.False(t, ok)
}

func TestStore_TokenSource(t *testing.T) {
	store := NewStore(time.Hour)
	id, _ := store.Create("tok-1", model.User{ID: "u1"})

	source := store.Source(id)
	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)

	// logout cuts the source off
	store.Delete(id)
	_, err = source.Token()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_PruneExpired(t *testing.T) {
	store := NewStore(time.Hour)
	store.Create(signedToken(t, time.Now().Add(-time.Minute)), model.User{ID: "u1"})
	live, _ := store.Create("opaque", model.User{ID: "u2"})

	assert.Equal(t, 1, store.PruneExpired())
	_, ok := store.Get(live)
	assert.True(t, ok)
}
