package nlp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
)

// RuleClassifier is the degraded-mode classifier used when the NLP service
// is down or times out. Keyword matching over a small intent set, nothing
// more; every result it produces is flagged Fallback so downstream code and
// audit records can tell model output from rule output.
type RuleClassifier struct {
	log   *logger.Logger
	rules []rule
}

type rule struct {
	Intent   domain.Intent
	Keywords []string
}

type rulesFile struct {
	Rules []struct {
		Intent   string   `yaml:"intent"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"rules"`
}

// defaultRules cover the minimal intent set; order matters, first match wins.
var defaultRules = []rule{
	{Intent: domain.IntentCancelReservation, Keywords: []string{"cancel", "cancellation"}},
	{Intent: domain.IntentConfirmReservation, Keywords: []string{"confirm", "yes, book", "go ahead"}},
	{Intent: domain.IntentMakeReservation, Keywords: []string{"book", "reserve", "reservation"}},
	{Intent: domain.IntentCheckAvailability, Keywords: []string{"available", "availability", "free room", "vacancy"}},
	{Intent: domain.IntentReservationStatus, Keywords: []string{"status", "my booking", "my reservation"}},
	{Intent: domain.IntentEscalate, Keywords: []string{"human", "agent", "person", "complaint"}},
	{Intent: domain.IntentHelp, Keywords: []string{"help", "what can you"}},
	{Intent: domain.IntentGreeting, Keywords: []string{"hello", "hi", "hey", "good morning", "good evening"}},
}

// NewRuleClassifier loads rules from the yaml file at INTENT_RULES_PATH when
// set, falling back to the built-in defaults.
func NewRuleClassifier(log *logger.Logger) (*RuleClassifier, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	rc := &RuleClassifier{
		log:   log.With("client", "RuleClassifier"),
		rules: defaultRules,
	}

	path := strings.TrimSpace(os.Getenv("INTENT_RULES_PATH"))
	if path == "" {
		return rc, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse intent rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return rc, nil
	}

	loaded := make([]rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		intent := domain.ParseIntent(r.Intent)
		if intent == domain.IntentUnknown {
			rc.log.Warn("Skipping rule for unknown intent", "intent", r.Intent)
			continue
		}
		loaded = append(loaded, rule{Intent: intent, Keywords: r.Keywords})
	}
	if len(loaded) > 0 {
		rc.rules = loaded
	}
	return rc, nil
}

func (rc *RuleClassifier) Classify(ctx context.Context, text string, sessionHistory []string, language string) (*domain.IntentResult, error) {
	lower := strings.ToLower(text)
	for _, r := range rc.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return &domain.IntentResult{
					Intent:     r.Intent,
					Confidence: 0.5,
					Fallback:   true,
				}, nil
			}
		}
	}
	return &domain.IntentResult{
		Intent:     domain.IntentUnknown,
		Confidence: 0.0,
		Fallback:   true,
	}, nil
}
