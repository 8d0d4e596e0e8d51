package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/doccache-backend/internal/domain/docs"
	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
	"github.com/yungbote/doccache-backend/internal/platform/httpx"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

// FetchRequest asks a provider for documentation matching Query.
type FetchRequest struct {
	Query          string `json:"query"`
	TechnologyHint string `json:"technology,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type Config struct {
	// Name is recorded as source_provider on every ingested document.
	Name       string
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the first back-off step; it doubles per attempt.
	RetryBase time.Duration
}

// Client fetches raw results from a JSON-over-HTTP search provider. The response
// may be a bare array of results or an object with a "results" array.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

func New(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("missing PROVIDER_URL")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "http"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("client", "ProviderClient", "provider", cfg.Name),
	}, nil
}

func (c *Client) Name() string { return strings.ToLower(c.cfg.Name) }

func (c *Client) Fetch(ctx context.Context, req FetchRequest) ([]docs.RawResult, error) {
	ctx = ctxutil.Default(ctx)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	backoff := c.cfg.RetryBase
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			return decodeResults(raw)
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.WithContext(ctx).Warn("provider request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		t := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if id := ctxutil.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-Id", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: "provider " + c.cfg.Name, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func decodeResults(raw []byte) ([]docs.RawResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []docs.RawResult{}, nil
	}
	if trimmed[0] == '[' {
		var out []docs.RawResult
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("provider decode: %w", err)
		}
		return out, nil
	}
	var env struct {
		Results []docs.RawResult `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("provider decode: %w", err)
	}
	if env.Results == nil {
		return nil, errors.New("provider decode: response has no results array")
	}
	return env.Results, nil
}
