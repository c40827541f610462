package app

import (
	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/jobs"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/services"
	"github.com/yungbote/concierge-backend/internal/store"
)

type Services struct {
	Audit        services.AuditService
	Guard        services.TenantGuard
	Locks        services.ReservationLocks
	Breaker      services.CircuitBreaker
	Gateway      services.PMSGateway
	RetryQueue   services.RetryQueue
	Sessions     services.Sessions
	Senders      *services.SenderRegistry
	Orchestrator services.Orchestrator
	DLQWorker    *jobs.DLQWorker
}

func wireServices(log *logger.Logger, cfg Config, st store.Store, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")

	audit := services.NewAuditService(log, reposet.Audit)
	guard := services.NewTenantGuard(log, reposet.Tenant, audit, cfg.MetadataWhitelist)
	locks := services.NewReservationLocks(log, st)
	breaker := services.NewCircuitBreaker(log, st, cfg.Breaker)
	gateway := services.NewPMSGateway(log, clients.PMS, breaker, st, cfg.Gateway)
	queue := services.NewRetryQueue(log, st, reposet.PermanentFailure, audit, cfg.RetryQueue)
	sessions := services.NewSessions(log, st, cfg.SessionTTL)

	senders := services.NewSenderRegistry(log)
	if clients.Twilio != nil {
		senders.Register(domain.ChannelWhatsApp, services.NewTwilioSender(clients.Twilio, cfg.TwilioWhatsApp))
		senders.Register(domain.ChannelSMS, services.NewTwilioSender(clients.Twilio, false))
	}
	if clients.SendGrid != nil {
		senders.Register(domain.ChannelEmail, services.NewEmailSender(clients.SendGrid, cfg.EmailSubject))
	}
	// Webchat replies ride the webhook response; no sender needed.

	orchestrator := services.NewOrchestrator(
		log,
		cfg.Orchestrator,
		sessions,
		clients.NLP,
		clients.Rules,
		gateway,
		locks,
		queue,
		clients.Speech,
		senders,
		audit,
		st,
	)

	worker := jobs.NewDLQWorker(log, queue, orchestrator, cfg.WorkerInterval)

	return Services{
		Audit:        audit,
		Guard:        guard,
		Locks:        locks,
		Breaker:      breaker,
		Gateway:      gateway,
		RetryQueue:   queue,
		Sessions:     sessions,
		Senders:      senders,
		Orchestrator: orchestrator,
		DLQWorker:    worker,
	}
}
