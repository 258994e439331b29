package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/model"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
)

func sessionRouter(store *auth.Store) *gin.Engine {
	router := gin.New()
	router.Use(Session(store))
	router.GET("/protected", func(c *gin.Context) {
		session, _ := GetSession(c)
		c.JSON(http.StatusOK, gin.H{"code": 0, "user": session.User.Username})
	})
	return router
}

func TestSession_MissingCredentials(t *testing.T) {
	router := sessionRouter(auth.NewStore(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestSession_Cookie(t *testing.T) {
	store := auth.NewStore(time.Hour)
	id, _ := store.Create("tok", model.User{ID: "u1", Username: "dealer1"})
	router := sessionRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "dealer1")
}

func TestSession_BearerHeader(t *testing.T) {
	store := auth.NewStore(time.Hour)
	id, _ := store.Create("tok", model.User{ID: "u1", Username: "dealer1"})
	router := sessionRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+id)
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "dealer1")
}

func TestSession_QueryFallback(t *testing.T) {
	store := auth.NewStore(time.Hour)
	id, _ := store.Create("tok", model.User{ID: "u1", Username: "dealer1"})
	router := sessionRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected?session="+id, nil)
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "dealer1")
}

func TestSession_UnknownID(t *testing.T) {
	router := sessionRouter(auth.NewStore(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}
