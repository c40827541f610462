package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/concierge-backend/internal/clients/nlp"
	"github.com/yungbote/concierge-backend/internal/clients/pms"
	"github.com/yungbote/concierge-backend/internal/clients/sendgrid"
	"github.com/yungbote/concierge-backend/internal/clients/speech"
	"github.com/yungbote/concierge-backend/internal/clients/twilio"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
)

type Clients struct {
	PMS      pms.Client
	NLP      nlp.Classifier
	Rules    *nlp.RuleClassifier
	Speech   speech.Provider
	Twilio   twilio.Client
	SendGrid sendgrid.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	pmsClient, err := pms.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init pms client: %w", err)
	}

	rules, err := nlp.NewRuleClassifier(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init rule classifier: %w", err)
	}

	// The remote classifier is optional; without it the rule classifier
	// carries classification on its own.
	var classifier nlp.Classifier
	if envSet("NLP_BASE_URL") {
		classifier, err = nlp.NewFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init nlp client: %w", err)
		}
	}

	var speechProvider speech.Provider
	if envSet("GOOGLE_APPLICATION_CREDENTIALS") {
		speechProvider, err = speech.New(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init speech client: %w", err)
		}
	}

	var twilioClient twilio.Client
	if envSet("TWILIO_ACCOUNT_SID") {
		twilioClient, err = twilio.NewFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init twilio client: %w", err)
		}
	}

	var sendgridClient sendgrid.Client
	if envSet("SENDGRID_API_KEY") {
		sendgridClient, err = sendgrid.NewFromEnv(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
	}

	return Clients{
		PMS:      pmsClient,
		NLP:      classifier,
		Rules:    rules,
		Speech:   speechProvider,
		Twilio:   twilioClient,
		SendGrid: sendgridClient,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
}

func envSet(name string) bool {
	return strings.TrimSpace(os.Getenv(name)) != ""
}
