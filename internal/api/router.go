package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/api/handler"
	"github.com/qzr8/dealer_go_portal/internal/api/middleware"
	"github.com/qzr8/dealer_go_portal/internal/auth"
)

type Router struct {
	sessionHandler   *handler.SessionHandler
	jobHandler       *handler.JobHandler
	websocketHandler *handler.WebSocketHandler
	sessions         *auth.Store
	cfg              *config.Config
}

func NewRouter(
	sessionHandler *handler.SessionHandler,
	jobHandler *handler.JobHandler,
	websocketHandler *handler.WebSocketHandler,
	sessions *auth.Store,
	cfg *config.Config,
) *Router {
	return &Router{
		sessionHandler:   sessionHandler,
		jobHandler:       jobHandler,
		websocketHandler: websocketHandler,
		sessions:         sessions,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// public
		api.POST("/session/login", r.sessionHandler.Login)
		api.GET("/languages", r.sessionHandler.Languages)

		// authenticated
		authed := api.Group("")
		authed.Use(middleware.Session(r.sessions))
		{
			authed.GET("/ws", r.websocketHandler.Handle)

			authed.GET("/session", r.sessionHandler.Me)
			authed.POST("/session/logout", r.sessionHandler.Logout)

			jobs := authed.Group("/jobs")
			{
				jobs.POST("/single", r.jobHandler.SubmitSingle)
				jobs.POST("/batch", r.jobHandler.SubmitBatch)
				jobs.GET("", r.jobHandler.List)
				jobs.GET("/:id", r.jobHandler.Get)
				jobs.POST("/:id/cancel", r.jobHandler.Cancel)
				jobs.POST("/:id/track", r.jobHandler.Track)
				jobs.DELETE("/:id", r.jobHandler.Delete)
				jobs.GET("/:id/results", r.jobHandler.Results)
			}
		}
	}

	return engine
}
