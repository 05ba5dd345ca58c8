package points

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"medication-adherence/internal/platform/httpclient"
	"medication-adherence/internal/ports/rewards"
)

var (
	ErrPointsNotConfigured = errors.New("points client not configured")
	ErrPointsUnavailable   = errors.New("points service unavailable")
	ErrPointsUpstream      = errors.New("points upstream error")
)

const doseLoggedPath = "/v1/events/dose-logged"

type Config struct {
	BaseURL string
	APIKey  string

	// Si está vacío se usa "X-Api-Key".
	APIKeyHeader string
	Timeout      time.Duration

	// Fallos consecutivos que abren el breaker. Por defecto 5.
	MaxFailures uint32
	// Cuánto queda abierto antes de probar de nuevo. Por defecto 30s.
	OpenTimeout time.Duration

	Transport http.RoundTripper
}

// Client implementa rewards.Notifier contra el servicio de puntos.
type Client struct {
	http    *httpclient.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

var _ rewards.Notifier = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	key := strings.TrimSpace(cfg.APIKey)
	if base == "" || key == "" {
		return nil, ErrPointsNotConfigured
	}

	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = "X-Api-Key"
	}

	hc, err := httpclient.New(httpclient.Config{
		BaseURL:   base,
		Timeout:   cfg.Timeout,
		Headers:   map[string]string{header: key},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, err
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "points",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		// Un 4xx es culpa nuestra, no del upstream: no cuenta para abrir.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := httpclient.StatusCode(err)
			return code >= 400 && code < 500
		},
	})

	return &Client{http: hc, breaker: cb}, nil
}

type doseLoggedRequest struct {
	UserID        string    `json:"user_id"`
	RegimenID     string    `json:"regimen_id"`
	DoseLogID     string    `json:"dose_log_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	ActualTime    time.Time `json:"actual_time"`
	MinutesLate   int       `json:"minutes_late"`
	OnTime        bool      `json:"on_time"`
}

func (c *Client) DoseLogged(ctx context.Context, ev rewards.DoseEvent) error {
	if c == nil || c.http == nil {
		return ErrPointsNotConfigured
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.http.DoJSON(ctx, http.MethodPost, doseLoggedPath, nil, doseLoggedRequest{
			UserID:        ev.UserID,
			RegimenID:     ev.RegimenID,
			DoseLogID:     ev.DoseLogID,
			ScheduledTime: ev.Scheduled.UTC(),
			ActualTime:    ev.Actual.UTC(),
			MinutesLate:   ev.MinutesLate,
			OnTime:        ev.OnTime,
		}, nil)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrPointsUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrPointsUpstream, err)
	}
}

// State expone el estado del breaker (closed/half-open/open).
func (c *Client) State() string {
	return c.breaker.State().String()
}
