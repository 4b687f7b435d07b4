package http

import (
	"context"

	"github.com/dkeye/msgpipe/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MsgpipeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", ctl.Health)

	api := r.Group("/api")
	api.GET("/ws/pipe", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws pipe endpoint hit")
		ctl.HandleWebSocket(ctx, c)
	})
	api.POST("/rtc/offer", func(c *gin.Context) {
		ctl.HandleOffer(ctx, c)
	})
	api.GET("/sessions", ctl.ListSessions)
	api.POST("/sessions/:sid/pause", ctl.PauseSession)
	api.POST("/sessions/:sid/resume", ctl.ResumeSession)
	api.DELETE("/sessions/:sid", ctl.CloseSession)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
