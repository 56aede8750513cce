package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Client is a rate-limited HTTP client with retries and per-host timeouts.
// Each provider host gets its own http.Client and ticker-based limiter so a
// slow or throttled provider cannot starve the others.
type Client struct {
	clients       map[string]*http.Client
	limiters      map[string]*time.Ticker
	configs       map[string]FetchConfig
	defaultConfig FetchConfig
	mu            sync.RWMutex
}

// NewClient creates a client with defaults filled in.
func NewClient(defaultConfig FetchConfig) *Client {
	if defaultConfig.TimeoutSeconds == 0 {
		defaultConfig.TimeoutSeconds = 20
	}
	if defaultConfig.MaxRetries == 0 {
		defaultConfig.MaxRetries = 3
	}
	if defaultConfig.RateLimitRPS == 0 {
		defaultConfig.RateLimitRPS = 1.0
	}
	return &Client{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*time.Ticker),
		configs:       make(map[string]FetchConfig),
		defaultConfig: defaultConfig,
	}
}

// Configure pins a fetch config to a host, overriding the default for all
// subsequent calls to it.
func (c *Client) Configure(host string, config FetchConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = c.defaultConfig.TimeoutSeconds
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = c.defaultConfig.MaxRetries
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = c.defaultConfig.RateLimitRPS
	}
	c.configs[host] = config
}

func (c *Client) getClient(host string, config FetchConfig) *http.Client {
	c.mu.RLock()
	client, exists := c.clients[host]
	c.mu.RUnlock()
	if exists {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, exists := c.clients[host]; exists {
		return client
	}

	client = &http.Client{
		Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	c.clients[host] = client

	interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
	if interval <= 0 {
		interval = time.Second
	}
	c.limiters[host] = time.NewTicker(interval)
	return client
}

func (c *Client) waitLimiter(ctx context.Context, host string) error {
	c.mu.RLock()
	limiter, exists := c.limiters[host]
	c.mu.RUnlock()
	if !exists {
		return nil
	}
	select {
	case <-limiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoJSON performs a request with rate limiting, retries and exponential
// backoff, decoding a 2xx response body into out. The body bytes are reused
// to rebuild the request on each attempt.
func (c *Client) DoJSON(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := u.Host

	config := c.defaultConfig
	c.mu.RLock()
	if hostConfig, exists := c.configs[host]; exists {
		config = hostConfig
	}
	c.mu.RUnlock()

	client := c.getClient(host, config)
	if err := c.waitLimiter(ctx, host); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if shouldRetry(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(snippet))
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
