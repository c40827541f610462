package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
	"github.com/yungbote/concierge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/platform/envutil"
)

// Client talks to the property-management system. It performs single
// attempts only: retry policy, caching and circuit breaking all live in the
// gateway service that wraps this client.
type Client interface {
	CheckAvailability(ctx context.Context, tenantID, checkIn, checkOut string) (*domain.Availability, error)
	GetReservation(ctx context.Context, tenantID, reservationID string) (*domain.Reservation, error)
	CreateReservation(ctx context.Context, req CreateReservationRequest) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, tenantID, reservationID string) error
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("PMS_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("PMS_API_KEY")),
		Timeout: envutil.Duration("PMS_TIMEOUT", 10*time.Second),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing PMS_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &client{
		log:        log.With("client", "PMSClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type CreateReservationRequest struct {
	TenantID string `json:"tenant_id"`
	GuestID  string `json:"guest_id"`
	RoomType string `json:"room_type"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	// RequestID makes reservation creation idempotent on the PMS side;
	// replays of the same guest message reuse the same id.
	RequestID string `json:"request_id"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("pms http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) CheckAvailability(ctx context.Context, tenantID, checkIn, checkOut string) (*domain.Availability, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("pms: tenantID required")
	}
	q := url.Values{}
	q.Set("check_in", checkIn)
	q.Set("check_out", checkOut)
	endpoint := fmt.Sprintf("%s/v1/properties/%s/availability?%s", c.cfg.BaseURL, url.PathEscape(tenantID), q.Encode())

	av, err := doJSON[domain.Availability](c, ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	av.FetchedAt = time.Now().UTC()
	return av, nil
}

func (c *client) GetReservation(ctx context.Context, tenantID, reservationID string) (*domain.Reservation, error) {
	if tenantID == "" || reservationID == "" {
		return nil, fmt.Errorf("pms: tenantID and reservationID required")
	}
	endpoint := fmt.Sprintf("%s/v1/properties/%s/reservations/%s",
		c.cfg.BaseURL, url.PathEscape(tenantID), url.PathEscape(reservationID))
	return doJSON[domain.Reservation](c, ctx, http.MethodGet, endpoint, nil)
}

func (c *client) CreateReservation(ctx context.Context, req CreateReservationRequest) (*domain.Reservation, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("pms: tenantID required")
	}
	if req.RoomType == "" || req.CheckIn == "" || req.CheckOut == "" {
		return nil, fmt.Errorf("pms: room type and date range required")
	}
	endpoint := fmt.Sprintf("%s/v1/properties/%s/reservations", c.cfg.BaseURL, url.PathEscape(req.TenantID))
	return doJSON[domain.Reservation](c, ctx, http.MethodPost, endpoint, req)
}

func (c *client) CancelReservation(ctx context.Context, tenantID, reservationID string) error {
	if tenantID == "" || reservationID == "" {
		return fmt.Errorf("pms: tenantID and reservationID required")
	}
	endpoint := fmt.Sprintf("%s/v1/properties/%s/reservations/%s",
		c.cfg.BaseURL, url.PathEscape(tenantID), url.PathEscape(reservationID))
	_, err := doJSON[struct{}](c, ctx, http.MethodDelete, endpoint, nil)
	return err
}

func doJSON[T any](c *client, ctx context.Context, method, urlStr string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, urlStr, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
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
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out T
	if len(raw) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pms decode error: %w", err)
	}
	return &out, nil
}
