package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/adapters/signal"
	"github.com/dkeye/Gallery/internal/app"
	"github.com/dkeye/Gallery/internal/config"
	"github.com/dkeye/Gallery/internal/core"
)

const clientTokenKey = "ct"

// ClientTokenMiddleware keeps a random client token in the cookie session
// and exposes it as "client_token".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms core.RoomManager, reg *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured, sessions reset on restart")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("GallerySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	h := &handlers{rooms: rooms, registry: reg}
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:name", h.getRoom)
	api.DELETE("/rooms/:name", h.stopRoom)
	api.GET("/me", h.whoAmI)
	api.PUT("/me", h.rename)

	ctrl := signal.NewSignalWSController(rooms, reg, signal.Limits{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait(),
		SendBuffer:   cfg.SendBuffer,
		RateMessages: cfg.RateLimit.Messages,
		RateInterval: cfg.RateLimit.Interval,
	}, cfg.Room.Names)
	r.GET("/ws/:room", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("room", c.Param("room")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
