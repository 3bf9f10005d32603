package api

import (
	"github.com/RishiKendai/keyguard/internal/config"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(cfg *config.Config, sessions SessionRepository, publisher PastePublisher, pastes PasteLister) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(ErrorHandlerMiddleware())

	handler := NewHandler(cfg, sessions, publisher, pastes)
	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	// The unload beacon cannot set headers, so clear carries its token in the body
	router.POST("/keystroke/clear", handler.Clear)

	keystroke := router.Group("/keystroke")
	keystroke.Use(JWTAuthMiddleware(cfg.JWTSecret))
	keystroke.Use(RateLimitMiddleware(rateLimiter))
	{
		keystroke.POST("", handler.Track)
		keystroke.GET("/report", handler.Report)
		keystroke.GET("/pastes", handler.Pastes)
	}

	return router
}
