package app

import (
	"github.com/yungbote/concierge-backend/internal/handlers"
	"github.com/yungbote/concierge-backend/internal/middleware"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

type Handlers struct {
	Message *handlers.MessageHandler
	Ops     *handlers.OpsHandler
}

func wireHandlers(log *logger.Logger, reposet Repos, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Message: handlers.NewMessageHandler(log, serviceset.Guard, serviceset.Orchestrator),
		Ops: handlers.NewOpsHandler(
			log,
			serviceset.RetryQueue,
			serviceset.DLQWorker,
			serviceset.Gateway,
			reposet.Audit,
			reposet.PermanentFailure,
		),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, cfg.WebhookSecret, cfg.OpsSecret),
	}
}
