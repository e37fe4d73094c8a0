package handler

import (
	"github.com/gin-gonic/gin"

	"room_chat/internal/config"
	"room_chat/internal/middleware"
	"room_chat/pkg/logger"
)

func SetupRouter(handlers *Handlers, authMiddleware *middleware.AuthMiddleware, rateLimitMiddleware *middleware.RateLimitMiddleware, cfg *config.Config, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/server-info", handlers.Health.ServerInfo)

	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/auth")
		public.Use(rateLimitMiddleware.Limit())
		{
			public.POST("/register", handlers.Auth.Register)
			public.POST("/login", handlers.Auth.Login)
			public.POST("/guest", handlers.Auth.Guest)
			public.POST("/refresh", handlers.Auth.Refresh)
			public.POST("/logout", handlers.Auth.Logout)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth(), rateLimitMiddleware.Limit())
		{
			protected.GET("/auth/me", handlers.Auth.Me)
			protected.PATCH("/auth/guest/upgrade", handlers.Auth.UpgradeGuest)

			protected.GET("/my-rooms", handlers.Room.ListMine)

			rooms := protected.Group("/rooms")
			{
				rooms.GET("", handlers.Room.ListPublic)
				rooms.POST("", handlers.Room.Create)
				rooms.GET("/:id", handlers.Room.Get)
				rooms.PUT("/:id", handlers.Room.Update)
				rooms.DELETE("/:id", handlers.Room.Delete)
				rooms.POST("/:id/join", handlers.Room.Join)
				rooms.POST("/:id/leave", handlers.Room.Leave)
				rooms.GET("/:id/members", handlers.Room.Members)
				rooms.GET("/:id/presence", handlers.Room.Presence)
				rooms.GET("/:id/activity", handlers.Room.Activity)

				rooms.GET("/:id/messages", handlers.Message.List)
				rooms.POST("/:id/messages", handlers.Message.Send)
			}

			protected.POST("/messages/:id/files", handlers.File.Upload)
			protected.GET("/files/:id", handlers.File.Download)
			protected.GET("/files/:id/thumbnail", handlers.File.Thumbnail)
		}
	}

	// Poll deployments have no topic to subscribe to.
	if handlers.WebSocket != nil {
		router.GET("/ws/rooms/:id", handlers.WebSocket.Subscribe)
	}

	return router
}
