package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/assignments/:id/stages", handler.advanceStage)
		protected.GET("/assignments/:id/timeline", handler.getTimeline)

		protected.POST("/assignments/:id/waiting", handler.enterWaiting)
		protected.PUT("/assignments/:id/waiting/:waitingId/exit", handler.exitWaiting)
		protected.DELETE("/waiting/:waitingId", handler.deleteWaiting)

		protected.POST("/assignments/:id/pings", handler.recordPing)
		protected.POST("/assignments/:id/path/consolidate", handler.consolidatePath)
		protected.GET("/assignments/:id/path", handler.getPath)
		protected.GET("/assignments/:id/live", handler.liveCoordinates)

		protected.GET("/notifications", handler.listNotifications)
		protected.GET("/notifications/unread-count", handler.unreadCount)
		protected.DELETE("/notifications", handler.deleteNotifications)
	}

	return router
}
