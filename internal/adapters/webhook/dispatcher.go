// Package webhook delivers invitation lifecycle events to tenant endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"referrski/internal/domain"
	"referrski/internal/metrics"
)

// ErrBlockedAddress is returned when a webhook connection would reach a private or loopback address.
var ErrBlockedAddress = errors.New("webhook address is not publicly routable")

// Config controls outbound delivery.
type Config struct {
	Timeout              time.Duration
	MaxResponseBytes     int64
	BlockPrivateNetworks bool
	UserAgent            string
}

const (
	defaultTimeout          = 5 * time.Second
	defaultMaxResponseBytes = 64 << 10
)

type dispatcher struct {
	client  *http.Client
	maxBody int64
	agent   string
	logger  *slog.Logger
}

// NewDispatcher returns a WebhookDispatcher that performs a single JSON POST per
// delivery. Redirects are not followed.
func NewDispatcher(cfg Config, logger *slog.Logger) domain.WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "referrski-webhooks/1.0"
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if cfg.BlockPrivateNetworks {
		dialer.Control = dialControl
	}
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
	}
	return &dispatcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBody: cfg.MaxResponseBytes,
		agent:   cfg.UserAgent,
		logger:  logger,
	}
}

func (d *dispatcher) Deliver(ctx context.Context, url, authHeader string, payload domain.WebhookPayload) (*domain.WebhookResponse, error) {
	eventType := string(payload.Type)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(eventType, "error").Inc()
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.agent)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(eventType, "error").Inc()
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody))
	if err != nil {
		d.logger.WarnContext(ctx, "webhook response body read failed", "event_type", eventType, "err", err)
	}
	out := &domain.WebhookResponse{StatusCode: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.WebhookDeliveries.WithLabelValues(eventType, "rejected").Inc()
		return out, fmt.Errorf("%w: %d", domain.ErrWebhookRejected, resp.StatusCode)
	}
	metrics.WebhookDeliveries.WithLabelValues(eventType, "ok").Inc()
	d.logger.DebugContext(ctx, "webhook delivered", "event_type", eventType, "status", resp.StatusCode)
	return out, nil
}

// dialControl runs after name resolution, so it sees the address actually being dialed.
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unparseable address %s", ErrBlockedAddress, address)
	}
	return checkIP(ip)
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}
