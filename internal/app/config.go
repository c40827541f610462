package app

import (
	"time"

	"github.com/yungbote/concierge-backend/internal/platform/envutil"
	"github.com/yungbote/concierge-backend/internal/services"
)

type Config struct {
	Environment string
	Version     string

	WebhookSecret string
	OpsSecret     string

	MetadataWhitelist []string

	SessionTTL     time.Duration
	WorkerInterval time.Duration

	Breaker      services.BreakerConfig
	Gateway      services.GatewayConfig
	RetryQueue   services.RetryQueueConfig
	Orchestrator services.OrchestratorConfig

	TwilioWhatsApp bool
	EmailSubject   string
}

func LoadConfig() Config {
	return Config{
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		WebhookSecret: envutil.String("WEBHOOK_JWT_SECRET", "defaultsecret"),
		OpsSecret:     envutil.String("OPS_JWT_SECRET", "defaultsecret"),

		MetadataWhitelist: envutil.StringSlice("METADATA_WHITELIST", []string{"user_context", "source", "locale"}),

		SessionTTL:     envutil.Duration("SESSION_TTL", 30*time.Minute),
		WorkerInterval: envutil.Duration("DLQ_WORKER_INTERVAL", 5*time.Second),

		Breaker: services.BreakerConfig{
			FailureThreshold: int64(envutil.Int("BREAKER_FAILURE_THRESHOLD", 5)),
			RecoveryTimeout:  envutil.Duration("BREAKER_RECOVERY_TIMEOUT", 30*time.Second),
			FailureWindow:    envutil.Duration("BREAKER_FAILURE_WINDOW", 10*time.Minute),
		},
		Gateway: services.GatewayConfig{
			CacheTTL:        envutil.Duration("PMS_CACHE_TTL", 60*time.Second),
			CallTimeout:     envutil.Duration("PMS_CALL_TIMEOUT", 10*time.Second),
			ReadMaxRetries:  envutil.Int("PMS_READ_MAX_RETRIES", 2),
			ReadBackoffBase: envutil.Duration("PMS_READ_BACKOFF_BASE", 200*time.Millisecond),
			Policy: services.DegradedResponsePolicy{
				AllowStaleReads: envutil.Bool("DEGRADED_ALLOW_STALE_READS", true),
				AllowSimulated:  envutil.Bool("DEGRADED_ALLOW_SIMULATED", false),
			},
		},
		RetryQueue: services.RetryQueueConfig{
			BaseDelay:  envutil.Duration("DLQ_BASE_DELAY", 60*time.Second),
			MaxRetries: envutil.Int("DLQ_MAX_RETRIES", 3),
			EntryTTL:   envutil.Duration("DLQ_ENTRY_TTL", 7*24*time.Hour),
			BatchLimit: int64(envutil.Int("DLQ_BATCH_LIMIT", 50)),
		},
		Orchestrator: services.OrchestratorConfig{
			ConfidenceThreshold: envutil.Float("INTENT_CONFIDENCE_THRESHOLD", 0.6),
			LockTTL:             envutil.Duration("RESERVATION_LOCK_TTL", 30*time.Second),
			ProcessedTTL:        envutil.Duration("MESSAGE_DEDUPE_TTL", 24*time.Hour),
			HistoryTurns:        envutil.Int("INTENT_HISTORY_TURNS", 10),
		},

		TwilioWhatsApp: envutil.Bool("TWILIO_WHATSAPP", true),
		EmailSubject:   envutil.String("EMAIL_REPLY_SUBJECT", ""),
	}
}
