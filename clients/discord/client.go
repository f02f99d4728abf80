package discord

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guildcloner/clients"
	"guildcloner/core"
	"guildcloner/metrics"
)

const (
	defaultRetryDelay = time.Second
	defaultTimeout    = 30 * time.Second
)

var userAgent = fmt.Sprintf("DiscordBot (guildcloner, discordgo %s)", discordgo.VERSION)

type ClientParams struct {
	BaseURL    string
	CDNBaseURL string
	Credential string

	// HTTPClient is optional. When nil a TLS 1.2+ pooled client is built.
	HTTPClient *http.Client
	Timeout    time.Duration

	// Limiter paces every outgoing call. Nil means unpaced.
	Limiter *rate.Limiter

	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration

	// OnError is called once for every call that ultimately fails.
	OnError func(error)

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// RateLimitedClient issues REST calls with the 429 backoff protocol and maps
// failures onto the core error taxonomy.
type RateLimitedClient struct {
	baseURL    string
	cdnBaseURL string
	credential string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries int
	minDelay   time.Duration
	maxDelay   time.Duration

	onError func(error)
	logger  zerolog.Logger
	metrics *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

var _ clients.DiscordClient = (*RateLimitedClient)(nil)

func NewRateLimitedClient(params ClientParams) (*RateLimitedClient, error) {
	credential := strings.TrimSpace(params.Credential)
	if credential == "" {
		return nil, core.ErrEmptyCredential
	}
	if !strings.HasPrefix(params.BaseURL, "https://") {
		return nil, fmt.Errorf("api base url must use https: %q", params.BaseURL)
	}
	if params.CDNBaseURL != "" && !strings.HasPrefix(params.CDNBaseURL, "https://") {
		return nil, fmt.Errorf("cdn base url must use https: %q", params.CDNBaseURL)
	}
	if params.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", params.MaxRetries)
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	minDelay, maxDelay := params.MinRetryDelay, params.MaxRetryDelay
	if minDelay <= 0 {
		minDelay = 500 * time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = 15 * time.Second
	}

	return &RateLimitedClient{
		baseURL:    strings.TrimRight(params.BaseURL, "/"),
		cdnBaseURL: strings.TrimRight(params.CDNBaseURL, "/"),
		credential: credential,
		httpClient: httpClient,
		limiter:    params.Limiter,
		maxRetries: params.MaxRetries,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		onError:    params.OnError,
		logger:     params.Logger.With().Str("component", "discord_client").Logger(),
		metrics:    params.Metrics,
		sleep:      sleepContext,
	}, nil
}

// Request performs an authenticated call against the API and returns the raw JSON body.
// path is relative to the API base, e.g. "guilds/123/roles".
func (c *RateLimitedClient) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	data, _, err := c.do(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), path, body, true)
	if err != nil {
		c.reportError(err)
		return nil, err
	}
	return data, nil
}

// Close releases pooled connections. The client must not be used afterwards.
func (c *RateLimitedClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *RateLimitedClient) reportError(err error) {
	if c.onError == nil || err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	c.onError(err)
}

func (c *RateLimitedClient) do(
	ctx context.Context,
	method, url, path string,
	body any,
	authenticated bool,
) ([]byte, http.Header, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request body for %s %s: %w", method, path, err)
		}
		payload = encoded
	}

	started := time.Now()
	status := 0
	defer func() {
		c.metrics.ObserveRequest(method, status, time.Since(started))
	}()

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, nil, fmt.Errorf("failed to wait for request slot: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request %s %s: %w", method, path, err)
		}
		req.Header.Set("User-Agent", userAgent)
		if authenticated {
			req.Header.Set("Authorization", c.credential)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		var respBody []byte
		if err == nil {
			respBody, err = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if attempt >= c.maxRetries {
				return nil, nil, &core.NetworkError{Method: method, Path: path, Attempts: attempt + 1, Err: err}
			}
			delay := c.backoff(attempt)
			c.logger.Warn().Err(err).
				Str("method", method).Str("path", path).
				Int("attempt", attempt+1).Dur("delay", delay).
				Msg("Network error, retrying")
			c.metrics.ObserveRetry("network")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, nil, err
			}
			continue
		}

		status = resp.StatusCode
		switch {
		case status >= 200 && status < 300:
			return respBody, resp.Header, nil

		case status == http.StatusTooManyRequests:
			delay := c.retryDelay(resp.Header, respBody)
			if attempt >= c.maxRetries {
				return nil, nil, &core.RateLimitExhaustedError{
					Method:    method,
					Path:      path,
					Attempts:  attempt + 1,
					LastDelay: delay,
				}
			}
			c.logger.Warn().
				Str("method", method).Str("path", path).
				Int("attempt", attempt+1).Dur("delay", delay).
				Msg("Rate limited, retrying")
			c.metrics.ObserveRetry("rate_limited")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, nil, err
			}

		case status == http.StatusUnauthorized:
			return nil, nil, &core.AuthError{Message: errorMessage(respBody, resp.Status)}

		case status == http.StatusForbidden:
			return nil, nil, &core.PermissionError{Method: method, Path: path, Message: errorMessage(respBody, resp.Status)}

		default:
			apiErr := &core.APIError{Method: method, Path: path, StatusCode: status, Message: resp.Status}
			var msg discordgo.APIErrorMessage
			if json.Unmarshal(respBody, &msg) == nil && msg.Message != "" {
				apiErr.Code = msg.Code
				apiErr.Message = msg.Message
			}
			return nil, nil, apiErr
		}
	}
}

// retryDelay reads the server-supplied delay from the body first, then the headers,
// and clamps it into the configured window.
func (c *RateLimitedClient) retryDelay(header http.Header, body []byte) time.Duration {
	delay := defaultRetryDelay

	var tooMany discordgo.TooManyRequests
	if err := json.Unmarshal(body, &tooMany); err == nil && tooMany.RetryAfter > 0 {
		delay = tooMany.RetryAfter
	} else if d, ok := headerSeconds(header, "X-RateLimit-Reset-After"); ok {
		delay = d
	} else if d, ok := headerSeconds(header, "Retry-After"); ok {
		delay = d
	}

	return c.clamp(delay)
}

func (c *RateLimitedClient) backoff(attempt int) time.Duration {
	return c.clamp(time.Duration(float64(c.minDelay) * math.Pow(2, float64(attempt))))
}

func (c *RateLimitedClient) clamp(d time.Duration) time.Duration {
	if d < c.minDelay {
		return c.minDelay
	}
	if d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

func headerSeconds(header http.Header, key string) (time.Duration, bool) {
	raw := header.Get(key)
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func errorMessage(body []byte, fallback string) string {
	var msg discordgo.APIErrorMessage
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
