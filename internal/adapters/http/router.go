package http

import (
	"context"

	"github.com/dkeye/Roomscribe/internal/adapters/signal"
	"github.com/dkeye/Roomscribe/internal/app/orch"
	"github.com/dkeye/Roomscribe/internal/config"
	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a stable anonymous identity in the session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *orch.Orchestrator) *gin.Engine {
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
	r.Use(sessions.Sessions("RoomscribeSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	r.GET("/healthz", healthz)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: orch}
	ctrl := signal.NewSignalWSController(orch, signal.Config{
		ReadLimit:        cfg.ReadLimit,
		SendQueue:        cfg.SendQueue,
		PingPeriod:       cfg.PingPeriod,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		JoinLimit:        cfg.JoinLimit,
		JoinInterval:     cfg.JoinInterval,
		ICEServers:       cfg.ICEServers,
	})

	api := r.Group("/api")

	api.GET("/ws/room", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws room endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id", h.getRoom)
	api.DELETE("/rooms/:id", h.evictRoom)
	api.GET("/rooms/:id/transcript", h.transcript)
	api.POST("/rooms/:id/notes", h.textArtifact(domain.ArtifactNotes))
	api.POST("/rooms/:id/summary", h.textArtifact(domain.ArtifactSummary))
	api.GET("/rooms/:id/download", h.download)
	api.POST("/artifacts/:kind", h.renderPayload)

	return r
}
