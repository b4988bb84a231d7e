// Package remote is the typed boundary to the remote allocation service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL      = "http://localhost:5000/api"
	DefaultTimeout      = 30 * time.Second
	DefaultProbeTimeout = 3 * time.Second

	maxBodyBytes = 8 << 20
	tracerName   = "github.com/saltfish/allocdesk/internal/remote"
)

// Client talks to the allocation service over HTTP+JSON. It keeps no cache.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	logger       *zap.Logger
	tracer       trace.Tracer
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithProbeTimeout bounds the availability probe.
func WithProbeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTracerProvider sets the tracer provider used for client spans.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		probeTimeout: DefaultProbeTimeout,
		logger:       logger.With(zap.String("component", "remote_client")),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the shared {success, ..., error} response shape.
type envelope struct {
	Success     *bool           `json:"success"`
	Error       string          `json:"error"`
	Strategies  json.RawMessage `json:"strategies"`
	Result      json.RawMessage `json:"result"`
	Performance json.RawMessage `json:"performance"`
	Cached      bool            `json:"cached"`
}

type calculateRequest struct {
	StrategyID string                  `json:"strategy_id"`
	TotalMoney float64                 `json:"total_money"`
	Parameters domain.ParameterPayload `json:"parameters"`
}

// ProbeAvailability reports whether the service answers its health endpoint with a 2xx JSON body.
// Every failure counts as unavailable.
func (c *Client) ProbeAvailability(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "remote.probe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Allocation service probe failed", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return false
	}

	var health map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&health); err != nil {
		span.SetStatus(codes.Error, "malformed health body")
		return false
	}
	return true
}

// ListStrategies fetches the service's strategy definitions keyed by id.
func (c *Client) ListStrategies(ctx context.Context) (map[string]domain.StrategyDefinition, error) {
	env, err := c.do(ctx, "list_strategies", http.MethodGet, "/strategies", nil, domain.MsgFetchStrategiesFailed)
	if err != nil {
		return nil, err
	}

	var wire map[string]wireStrategy
	if err := decodePayload(env.Strategies, &wire); err != nil {
		return nil, &domain.ServiceError{Op: "list_strategies", Message: domain.MsgFetchStrategiesFailed}
	}

	out := make(map[string]domain.StrategyDefinition, len(wire))
	for id, ws := range wire {
		out[id] = ws.toDomain(id)
	}
	return out, nil
}

// ComputeAllocation asks the service to allocate totalAmount for a strategy.
func (c *Client) ComputeAllocation(ctx context.Context, strategyID string, totalAmount float64, params domain.ParameterPayload) (*domain.RemoteAllocation, error) {
	if params == nil {
		params = domain.ParameterPayload{}
	}
	body := calculateRequest{
		StrategyID: strategyID,
		TotalMoney: totalAmount,
		Parameters: params,
	}

	env, err := c.do(ctx, "calculate", http.MethodPost, "/calculate", body, domain.MsgCalculateFailed,
		attribute.String("allocdesk.strategy_id", strategyID))
	if err != nil {
		return nil, err
	}

	var result domain.RemoteAllocation
	if err := decodePayload(env.Result, &result); err != nil {
		return nil, &domain.ServiceError{Op: "calculate", Message: domain.MsgCalculateFailed}
	}
	result.Cached = env.Cached
	return &result, nil
}

// GetPerformance fetches backtest metrics for a strategy. forceRefresh is passed to the service as a hint.
func (c *Client) GetPerformance(ctx context.Context, strategyID string, forceRefresh bool) (*domain.PerformanceSnapshot, error) {
	q := url.Values{}
	q.Set("strategy_id", strategyID)
	if forceRefresh {
		q.Set("refresh", "true")
	}

	env, err := c.do(ctx, "performance", http.MethodGet, "/performance?"+q.Encode(), nil, domain.MsgFetchPerformanceFailed,
		attribute.String("allocdesk.strategy_id", strategyID),
		attribute.Bool("allocdesk.refresh", forceRefresh))
	if err != nil {
		return nil, err
	}

	var wire wirePerformance
	if err := decodePayload(env.Performance, &wire); err != nil {
		return nil, &domain.ServiceError{Op: "performance", Message: domain.MsgFetchPerformanceFailed}
	}
	snap := wire.toDomain(strategyID)
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// do performs one request and validates the response envelope.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, fallback string, attrs ...attribute.KeyValue) (*envelope, error) {
	ctx, span := c.tracer.Start(ctx, "remote."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("url.path", path),
	)
	span.SetAttributes(attrs...)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Allocation service unreachable", zap.String("op", op), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		return nil, &domain.NetworkError{Op: op, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fallback
		if decodeErr == nil && env.Error != "" {
			msg = env.Error
		}
		c.logger.Warn("Allocation service returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		span.SetStatus(codes.Error, msg)
		return nil, &domain.ServiceError{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}

	if decodeErr != nil || env.Success == nil {
		c.logger.Warn("Allocation service sent malformed envelope", zap.String("op", op))
		span.SetStatus(codes.Error, "malformed envelope")
		return nil, &domain.ServiceError{Op: op, Message: fallback, StatusCode: resp.StatusCode}
	}

	if !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = fallback
		}
		c.logger.Warn("Allocation service reported failure", zap.String("op", op), zap.String("message", msg))
		span.SetStatus(codes.Error, msg)
		return nil, &domain.ServiceError{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}

	span.SetStatus(codes.Ok, "")
	return &env, nil
}

func decodePayload(raw json.RawMessage, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(trimmed, out)
}
