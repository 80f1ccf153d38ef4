// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"hotline_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group. Provider webhooks mount here.
	V1 *gin.RouterGroup
	// Member is the /api/v1 group with optional authentication: the caller's
	// identity is attached when a valid token is presented.
	Member *gin.RouterGroup
	// Protected is the /api/v1 group that rejects requests without a token.
	Protected *gin.RouterGroup
	// Public is the /api/v1 group for unauthenticated reads, rate limited per IP.
	Public *gin.RouterGroup
	// Config is the JWT configuration for auth middleware.
	Config config.JWTConfig
}
