package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"room-sync/internal/handlers"
	"room-sync/internal/logging"
	"room-sync/internal/middleware"
	"room-sync/internal/ws"
)

func NewRouter(log *logging.Logger, rh *handlers.RoomHandler, wsh *ws.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	r.GET("/healthz", rh.Health)

	api := r.Group("/api")
	{
		api.POST("/rooms", rh.CreateRoom)
		api.GET("/rooms/:code", rh.ValidateRoom)
	}

	r.GET("/ws", wsh.Serve)
	return r
}
