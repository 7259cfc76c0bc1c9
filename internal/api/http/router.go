package http

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(
	allowedOrigins []string,
	roomController *RoomController,
	realtimeController *RealtimeController,
	webrtcController *WebRTCController,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	if realtimeController != nil {
		router.GET("/ws", realtimeController.Serve)
	}

	api := router.Group("/api")

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", roomController.CreateRoom)
		rooms.GET("", roomController.ListRooms)
		rooms.GET("/code/:code", roomController.GetRoomByCode)
		rooms.GET("/:roomID", roomController.GetRoom)
		rooms.GET("/:roomID/messages", roomController.ListMessages)
	}

	if webrtcController != nil {
		api.GET("/webrtc/config", webrtcController.Config)
	}

	return router
}
