package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"squad-reconciler/internal/config"
	"squad-reconciler/internal/constants"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// RegeneratorClient calls a remote statistics service that owns the event stat and
// aggregate recomputation routines.
type RegeneratorClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	logger      zerolog.Logger
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

// JobResponse is returned by every recomputation endpoint.
type JobResponse struct {
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

func NewRegeneratorClient(cfg *config.Config, logger zerolog.Logger) *RegeneratorClient {
	return &RegeneratorClient{
		baseURL: strings.TrimRight(cfg.RegeneratorURL, "/"),
		apiKey:  cfg.RegeneratorAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.RegeneratorTimeout,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

func (c *RegeneratorClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RegeneratorClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *RegeneratorClient) RegenerateEventStats(ctx context.Context) error {
	resp, err := doRequest[JobResponse](ctx, c, c.baseURL+"/v1/event-stats/regenerate")
	if err != nil {
		return fmt.Errorf("regenerate event stats: %w", err)
	}
	c.logger.Info().Int("rows", resp.Rows).Msg("remote event stat regeneration finished")
	return nil
}

func (c *RegeneratorClient) RecomputeAllAggregates(ctx context.Context) error {
	resp, err := doRequest[JobResponse](ctx, c, c.baseURL+"/v1/aggregates/recompute")
	if err != nil {
		return fmt.Errorf("recompute aggregates: %w", err)
	}
	c.logger.Info().Int("rows", resp.Rows).Msg("remote aggregate recompute finished")
	return nil
}

func (c *RegeneratorClient) RecomputePlayerAggregate(ctx context.Context, playerID string) error {
	endpoint := fmt.Sprintf("%s/v1/aggregates/%s/recompute", c.baseURL, url.PathEscape(playerID))
	if _, err := doRequest[JobResponse](ctx, c, endpoint); err != nil {
		return fmt.Errorf("recompute aggregate for %s: %w", playerID, err)
	}
	return nil
}

// APIError is a non-200 response from the statistics service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

func doRequest[T any](ctx context.Context, client *RegeneratorClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", client.apiKey)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.RegeneratorTimeout)
	}
	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		var body JobResponse
		if json.Unmarshal(resp.Body(), &body) == nil {
			apiErr.Message = body.Error
		}
		return nil, apiErr
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
