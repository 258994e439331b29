package handler

import (
	"errors"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/api/middleware"
	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/model/dto"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
	"github.com/qzr8/dealer_go_portal/internal/remote"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

type SessionHandler struct {
	sessions *auth.Store
	tracker  *tracker.Tracker
	cfg      *config.Config
}

func NewSessionHandler(sessions *auth.Store, tr *tracker.Tracker, cfg *config.Config) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tracker:  tr,
		cfg:      cfg,
	}
}

// Login authenticates against the analysis service and opens a portal
// session. The bearer token it returns never reaches the browser.
// POST /api/v1/session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	login := remote.New(h.cfg.Remote.BaseURL, h.cfg.Remote.Timeout, nil)
	token, err := login.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			response.AuthError(c, "invalid username or password")
			return
		}
		log.Printf("Login: %v", err)
		response.RemoteError(c, "")
		return
	}

	authed := remote.New(h.cfg.Remote.BaseURL, h.cfg.Remote.Timeout, auth.StaticSource(token))
	user, err := authed.CurrentUser(c.Request.Context())
	if err != nil {
		log.Printf("Login: fetch user: %v", err)
		response.RemoteError(c, "")
		return
	}
	if user.ID == "" {
		user.ID = user.Username
	}

	id, session := h.sessions.Create(token, *user)

	// the tracker polls with the session's token; logout cuts it off
	client := remote.New(h.cfg.Remote.BaseURL, h.cfg.Remote.Timeout, h.sessions.Source(id))
	h.tracker.SetClient(user.ID, client)

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(middleware.SessionCookie, id, maxAge, "/", "", false, true)

	response.Success(c, dto.SessionResponse{
		User:      session.User,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout closes the portal session.
// POST /api/v1/session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	if id, ok := middleware.GetSessionID(c); ok {
		h.sessions.Delete(id)
	}
	h.tracker.RemoveClient(session.User.ID)

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	response.SuccessWithMessage(c, "logged out", nil)
}

// Me returns the current session.
// GET /api/v1/session
func (h *SessionHandler) Me(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	response.Success(c, dto.SessionResponse{
		User:      session.User,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

// Languages lists the transcription and translation options.
// GET /api/v1/languages
func (h *SessionHandler) Languages(c *gin.Context) {
	langs := h.cfg.Languages
	if len(langs) == 0 {
		langs = config.DefaultLanguages
	}
	response.Success(c, langs)
}
