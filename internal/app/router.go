package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/concierge-backend/internal/server"
)

func wireRouter(serviceName string, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    serviceName,
		MessageHandler: handlerset.Message,
		OpsHandler:     handlerset.Ops,
		AuthMiddleware: mw.Auth,
	})
}
