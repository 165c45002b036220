package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/avorobev/peertalk/internal/adapters/signal"
	"github.com/avorobev/peertalk/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, gw *signal.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.String(200, "server is live")
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		gw.HandleSignal(ctx, c)
	})

	return r
}
