package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valeevte/PriceTracker/internal/logger"
	"github.com/valeevte/PriceTracker/internal/metrics"
	"github.com/valeevte/PriceTracker/internal/products"
)

type RouterConfig struct {
	Handler     *products.Handler
	Store       products.Store
	Metrics     *metrics.Metrics
	Log         *logger.Logger
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Log))
	r.Use(Metrics(cfg.Metrics))
	r.Use(CORS(cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Store != nil {
			if err := cfg.Store.Ping(c.Request.Context()); err != nil {
				cfg.Log.Warn("healthz: store unreachable", "error", err)
				c.String(http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics.Enabled() {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	cfg.Handler.RegisterRoutes(r)
	return r
}
