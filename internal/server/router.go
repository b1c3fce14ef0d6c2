package server

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"photoshare/internal/handler"
)

// NewRouter wires the HTTP routes onto a fresh gin engine.
func NewRouter(h *handler.Handler, corsOrigins []string, uploadPrefix string) *gin.Engine {
	router := gin.New()
	router.Use(gin.CustomRecovery(h.Recover))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.UpdateProfile)
		api.POST("/upload", h.UploadImage)
		api.GET("/health", h.HealthCheck)
	}

	router.GET(path.Join("/", uploadPrefix, ":file"), h.ServeImage)
	router.NoRoute(h.NotFound)

	return router
}
