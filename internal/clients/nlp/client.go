package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/platform/envutil"
)

// Classifier is the NLP collaborator. The orchestrator treats it as
// unreliable: on any error it degrades to the rule-based classifier rather
// than failing the message.
type Classifier interface {
	Classify(ctx context.Context, text string, sessionHistory []string, language string) (*domain.IntentResult, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("NLP_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("NLP_API_KEY")),
		Timeout: envutil.Duration("NLP_TIMEOUT", 8*time.Second),
	}
}

func NewFromEnv(log *logger.Logger) (Classifier, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Classifier, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing NLP_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &client{
		log:        log.With("client", "NLPClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type classifyRequest struct {
	Text     string   `json:"text"`
	History  []string `json:"history,omitempty"`
	Language string   `json:"language,omitempty"`
}

type classifyResponse struct {
	Intent     string          `json:"intent"`
	Confidence float64         `json:"confidence"`
	Entities   []domain.Entity `json:"entities,omitempty"`
}

func (c *client) Classify(ctx context.Context, text string, sessionHistory []string, language string) (*domain.IntentResult, error) {
	body, err := json.Marshal(classifyRequest{
		Text:     text,
		History:  sessionHistory,
		Language: language,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.BaseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nlp http %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("nlp decode error: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("nlp confidence out of range: %f", out.Confidence)
	}

	return &domain.IntentResult{
		Intent:     domain.ParseIntent(out.Intent),
		Confidence: out.Confidence,
		Entities:   out.Entities,
	}, nil
}
