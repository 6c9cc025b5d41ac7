package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
)

// SetupWebSocketRouter mounts the real-time endpoint. Auth happens inside
// the handler so browsers can pass the token as a query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
