package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the REST API under /api. identity guards every route
// that needs a resolved caller.
func RegisterRoutes(r gin.IRouter, auth *AuthHandler, rooms *RoomHandler, identity gin.HandlerFunc) {
	api := r.Group("/api")

	users := api.Group("/users")
	{
		users.POST("/register", auth.Register)
		users.POST("/login", auth.Login)
		users.POST("/guest", auth.IssueGuest)
		users.GET("/random-nick", auth.RandomNickname)
		users.GET("/me", identity, auth.Me)
	}

	roomGroup := api.Group("/rooms")
	roomGroup.GET("", rooms.ListRooms)
	authed := roomGroup.Group("", identity)
	{
		authed.POST("", rooms.CreateRoom)
		authed.POST("/:roomId/enter", rooms.EnterRoom)
		authed.DELETE("/:roomId/exit", rooms.ExitRoom)
		authed.POST("/:roomId/start", rooms.StartGame)
		authed.POST("/:roomId/finish", rooms.FinishGame)
		authed.POST("/:roomId/socket-token", rooms.SocketToken)
	}
}
