package http

import (
	"context"
	"net/http"

	"github.com/abhimm5/chatapp/internal/adapters/signal"
	"github.com/abhimm5/chatapp/internal/app/orch"
	"github.com/abhimm5/chatapp/internal/config"
	"github.com/abhimm5/chatapp/internal/infra/ratelimit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// Deps are the collaborators the router hands requests to.
type Deps struct {
	Orch    *orch.Orchestrator
	Signal  *signal.SignalWSController
	Avatars http.FileSystem
	Limiter ratelimit.Limiter
}

// ClientTokenMiddleware gives every browser a stable token kept in the signed session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ChatSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	if deps.Avatars != nil {
		r.StaticFS("/avatars", deps.Avatars)
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	rooms := &roomHandlers{orch: deps.Orch}
	uploads := &uploadHandler{orch: deps.Orch, limiter: deps.Limiter, maxBytes: cfg.Upload.MaxBytes}

	r.POST("/uploadAvatar", uploads.Upload)

	api := r.Group("/api")
	api.GET("/rooms", rooms.List)
	api.GET("/rooms/:name", rooms.Get)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	return r
}
