package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/logger"
)

// RouterOptions configures SetupRouter.
type RouterOptions struct {
	// AllowedOrigins lists the CORS origins. Empty allows all.
	AllowedOrigins []string
	// SourceRoot bounds the paths of source registration requests. Empty
	// disables registration over HTTP.
	SourceRoot string
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(svc ElevationService, opts RouterOptions, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if log != nil {
		router.Use(logger.Middleware(log))
	}

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	handler := NewHandler(svc, opts.SourceRoot)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.GET("/elevation", handler.GetElevation)

	sources := v1.Group("/sources")
	sources.GET("", handler.GetSources)
	sources.DELETE("", handler.ClearSources)
	sources.POST("/dem", handler.AddDemDirectory)
	sources.PUT("/geoid", handler.SetGeoid)

	v1.PUT("/default-height", handler.SetDefaultHeight)
	v1.POST("/reload", handler.Reload)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}
