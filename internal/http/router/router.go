// Package router assembles the gin engine from the application modules.
package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	apphttp "hotline_backend/internal/http"
	"hotline_backend/internal/http/middleware"
	"hotline_backend/internal/metrics"
	"hotline_backend/platform/config"
	"hotline_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	healthTimeout = 2 * time.Second

	publicRatePerSecond = 5
	publicBurst         = 20
)

// New builds the engine: global middleware, health and metrics endpoints,
// the /api/v1 groups and every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	if app.Metrics != nil {
		engine.Use(app.Metrics.Middleware())
	}
	if corsCfg, ok := corsConfig(app.Config); ok {
		engine.Use(cors.New(corsCfg))
	}

	engine.GET("/api/health", health(app.Health))
	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler(app.Metrics.Registry())))
	}

	v1 := engine.Group("/api/v1")
	publicLimiter := httpkit.NewIPRateLimiter(rate.Limit(publicRatePerSecond), publicBurst, app.Logger)

	routerCtx := &apphttp.RouterContext{
		Engine:    engine,
		V1:        v1,
		Member:    v1.Group("", httpkit.AuthOptional(app.Config)),
		Protected: v1.Group("", httpkit.AuthRequired(app.Config)),
		Public:    v1.Group("", publicLimiter.RateLimit()),
		Config:    app.Config,
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(routerCtx)
		app.Logger.Info("registered module routes", "module", module.Name())
	}

	return engine
}

// GET /api/health
func health(checker apphttp.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// corsConfig reports false when no origin is allowed, in which case the
// middleware is not installed at all.
func corsConfig(cfg config.HTTPConfig) (cors.Config, bool) {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.HeaderRequestID)
	c.ExposeHeaders = []string{middleware.HeaderRequestID}
	c.MaxAge = 12 * time.Hour

	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		return c, true
	}

	origins := make([]string, 0, len(cfg.GetCORSOrigins()))
	for _, origin := range cfg.GetCORSOrigins() {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return c, false
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.GetCORSAllowCreds()
	return c, true
}
