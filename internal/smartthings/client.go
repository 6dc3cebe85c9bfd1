package smartthings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/stbridge/internal/infrastructure/config"
)

// Logger is the minimal logging interface this package needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenSource supplies the bearer token for each request. Using a
// callback instead of a fixed string lets a token refresher swap the
// credential without rebuilding the client.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields the same token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// Client is the SmartThings cloud API client.
//
// Every request flows through the same pipeline: rate limiter, bearer
// auth, bounded retry with fixed backoff for transient failures, and
// error classification into the package sentinel taxonomy. Device status
// reads are additionally served from a TTL cache.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      TokenSource
	maxRetries int
	retryDelay time.Duration

	limiter *rateLimiter
	cache   *statusCache
	metrics *Metrics
	logger  Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. Default is a no-op logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics attaches a metric set to the client.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTokenSource replaces the static config token with a dynamic source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a SmartThings API client from configuration.
func New(cfg config.SmartThingsConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.GetRequestTimeout(),
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      StaticToken(cfg.Token),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.GetRetryDelay(),
		limiter:    newRateLimiter(cfg.RateLimit.GetWindow(), cfg.RateLimit.MaxRequests),
		cache:      newStatusCache(cfg.GetCacheTTL()),
		logger:     noopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do executes a single API request with rate limiting, retry, and error
// classification. Returns the raw response body on success.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.recordRetry()
			c.logger.Debug("retrying request",
				"method", method, "path", path,
				"attempt", attempt+1, "error", lastErr)

			timer := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		waited, err := c.limiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if waited {
			c.metrics.recordRateWait()
		}

		data, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// doOnce performs a single HTTP round-trip without retry.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sentinel := ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			sentinel = ErrTimeout
		}
		c.metrics.recordRequest("network_error")
		return nil, fmt.Errorf("%w: %v", sentinel, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.recordRequest("network_error")
		return nil, fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		c.metrics.recordRequest(outcomeFor(resp.StatusCode))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Sentinel:   sentinel,
		}
	}

	c.metrics.recordRequest("success")
	return data, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeFor(status int) string {
	if status >= 500 {
		return "server_error"
	}
	return "client_error"
}

// errorMessage extracts the cloud's error message from a failed response
// body, best effort.
func errorMessage(data []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error.Message != "" {
		return body.Error.Message
	}
	return body.Message
}

// get performs a GET and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// itemsEnvelope matches the list shape used by every collection endpoint.
type itemsEnvelope[T any] struct {
	Items []T `json:"items"`
}

// Devices lists all devices visible to the token, optionally filtered to
// a location.
func (c *Client) Devices(ctx context.Context, locationID string) ([]Device, error) {
	path := "/devices"
	if locationID != "" {
		path += "?locationId=" + url.QueryEscape(locationID)
	}

	var envelope itemsEnvelope[Device]
	if err := c.get(ctx, path, &envelope); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return envelope.Items, nil
}

// DeviceStatus returns the full status payload for a device, served from
// the TTL cache when fresh.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (Status, error) {
	if status, ok := c.cache.Get(deviceID); ok {
		c.metrics.recordCacheHit()
		return status, nil
	}
	c.metrics.recordCacheMiss()

	var status Status
	path := "/devices/" + url.PathEscape(deviceID) + "/status"
	if err := c.get(ctx, path, &status); err != nil {
		return Status{}, fmt.Errorf("fetching status for %s: %w", deviceID, err)
	}

	c.cache.Set(deviceID, status)
	return status, nil
}

// BatchDeviceStatus fetches status for many devices with bounded
// concurrency and inter-batch pacing, keeping the request rate polite.
//
// Per-device failures do not abort the batch; they are returned in the
// error map keyed by device ID.
func (c *Client) BatchDeviceStatus(ctx context.Context, deviceIDs []string, batchSize int, pause time.Duration) (map[string]Status, map[string]error) {
	if batchSize < 1 {
		batchSize = 1
	}

	statuses := make(map[string]Status, len(deviceIDs))
	failures := make(map[string]error)
	var mu sync.Mutex

	for start := 0; start < len(deviceIDs); start += batchSize {
		if ctx.Err() != nil {
			mu.Lock()
			for _, id := range deviceIDs[start:] {
				failures[id] = ctx.Err()
			}
			mu.Unlock()
			break
		}

		end := start + batchSize
		if end > len(deviceIDs) {
			end = len(deviceIDs)
		}

		var wg sync.WaitGroup
		for _, id := range deviceIDs[start:end] {
			wg.Add(1)
			go func(deviceID string) {
				defer wg.Done()
				status, err := c.DeviceStatus(ctx, deviceID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[deviceID] = err
					return
				}
				statuses[deviceID] = status
			}(id)
		}
		wg.Wait()

		if pause > 0 && start+batchSize < len(deviceIDs) {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	return statuses, failures
}

// ExecuteCommand sends capability commands to a device. Commands execute
// in order within the single request. On success the device's cached
// status is invalidated so the next read reflects the new state.
func (c *Client) ExecuteCommand(ctx context.Context, deviceID string, commands []Command) error {
	if len(commands) == 0 {
		return nil
	}

	body := map[string]any{"commands": commands}
	path := "/devices/" + url.PathEscape(deviceID) + "/commands"
	if _, err := c.do(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("executing command on %s: %w", deviceID, err)
	}

	c.cache.Invalidate(deviceID)
	return nil
}

// RefreshDeviceStatus drops the cached status and fetches a fresh
// payload. Used immediately after a successful command.
func (c *Client) RefreshDeviceStatus(ctx context.Context, deviceID string) (Status, error) {
	c.cache.Invalidate(deviceID)
	return c.DeviceStatus(ctx, deviceID)
}

// CachedStatus returns the cached status for a device without touching
// the network. Used by toggle commands that branch on last-known state.
func (c *Client) CachedStatus(deviceID string) (Status, bool) {
	return c.cache.Get(deviceID)
}

// InvalidateStatus drops a single device from the status cache.
func (c *Client) InvalidateStatus(deviceID string) {
	c.cache.Invalidate(deviceID)
}

// ClearCache drops every cached status.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Locations lists the locations visible to the token.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var envelope itemsEnvelope[Location]
	if err := c.get(ctx, "/locations", &envelope); err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return envelope.Items, nil
}

// Rooms lists the rooms of a location.
func (c *Client) Rooms(ctx context.Context, locationID string) ([]Room, error) {
	var envelope itemsEnvelope[Room]
	path := "/locations/" + url.PathEscape(locationID) + "/rooms"
	if err := c.get(ctx, path, &envelope); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return envelope.Items, nil
}

// Scenes lists the scenes of a location.
func (c *Client) Scenes(ctx context.Context, locationID string) ([]Scene, error) {
	var envelope itemsEnvelope[Scene]
	path := "/scenes?locationId=" + url.QueryEscape(locationID)
	if err := c.get(ctx, path, &envelope); err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	return envelope.Items, nil
}

// ExecuteScene triggers a scene.
func (c *Client) ExecuteScene(ctx context.Context, sceneID string) error {
	path := "/scenes/" + url.PathEscape(sceneID) + "/execute"
	if _, err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("executing scene %s: %w", sceneID, err)
	}
	return nil
}

// Modes lists the modes of a location.
func (c *Client) Modes(ctx context.Context, locationID string) ([]Mode, error) {
	var envelope itemsEnvelope[Mode]
	path := "/locations/" + url.PathEscape(locationID) + "/modes"
	if err := c.get(ctx, path, &envelope); err != nil {
		return nil, fmt.Errorf("listing modes: %w", err)
	}
	return envelope.Items, nil
}

// SetMode switches the current mode of a location.
func (c *Client) SetMode(ctx context.Context, locationID, modeID string) error {
	body := map[string]any{"modeId": modeID}
	path := "/locations/" + url.PathEscape(locationID) + "/modes/current"
	if _, err := c.do(ctx, http.MethodPut, path, body); err != nil {
		return fmt.Errorf("setting mode %s: %w", modeID, err)
	}
	return nil
}
