// Package adapter implements the client for the external engagement API.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/engagement-monitor/internal/circuitbreaker"
	apierrors "github.com/engagement-monitor/internal/errors"
	"github.com/engagement-monitor/internal/ratelimit"
	"github.com/engagement-monitor/internal/retry"
	"github.com/engagement-monitor/internal/types"
)

// RawEngagement is one engagement object as returned by the API, before
// enrichment.
type RawEngagement struct {
	UserID         string     `json:"user_id"`
	Username       string     `json:"username"`
	DisplayName    string     `json:"display_name"`
	Description    string     `json:"description"`
	FollowersCount int        `json:"followers_count"`
	FollowingCount int        `json:"following_count"`
	Verified       bool       `json:"verified"`
	ProfileImage   string     `json:"profile_image_url"`
	TweetID        string     `json:"tweet_id"`
	ViewCount      *int64     `json:"view_count,omitempty"`
	OccurredAt     time.Time  `json:"created_at"`
}

// EngagementPage is one page of engagement objects plus its continuation
// state. An empty NextCursor with HasMore=false means the backfill for
// this target is exhausted.
type EngagementPage struct {
	Records    []RawEngagement
	NextCursor string
	HasMore    bool
}

// PostMetrics is the engagement-volume snapshot for one post.
type PostMetrics struct {
	Views    int64 `json:"view_count"`
	Likes    int64 `json:"like_count"`
	Retweets int64 `json:"retweet_count"`
	Replies  int64 `json:"reply_count"`
	Quotes   int64 `json:"quote_count"`
}

// EngagementClient defines the API operations the crawl handlers need.
type EngagementClient interface {
	FetchEngagements(ctx context.Context, jobType types.JobType, postID, cursor string) (*EngagementPage, error)
	FetchMetrics(ctx context.Context, postID string) (*PostMetrics, error)
}

// HTTPClient is the bearer-key HTTP client for the engagement API. Every
// outbound request passes through the shared pacing gate before it is
// sent, and through a circuit breaker so a degraded upstream fails fast
// instead of burning the rate budget on doomed requests.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	gate     *ratelimit.Gate
	breaker  *circuitbreaker.Breaker
	retryCfg *retry.Config
	pageSize int
}

// HTTPClientConfig holds configuration for the engagement API client.
type HTTPClientConfig struct {
	BaseURL        string
	APIKey         string
	Gate           *ratelimit.Gate
	Breaker        *circuitbreaker.Breaker // optional, defaulted when nil
	RequestTimeout time.Duration
	MaxRetries     int
	PageSize       int
}

// NewHTTPClient creates a new engagement API client.
func NewHTTPClient(cfg *HTTPClientConfig) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries
	}
	gate := cfg.Gate
	if gate == nil {
		gate = ratelimit.NewGate(0)
	}
	breaker := cfg.Breaker
	if breaker == nil {
		// Only transient failures (429, 5xx, timeouts) move the breaker;
		// auth and not-found responses mean the upstream is healthy.
		breakerCfg := circuitbreaker.DefaultConfig("engage-api")
		breakerCfg.CountFailure = apierrors.IsRetryable
		breaker = circuitbreaker.New(breakerCfg)
	}
	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		gate:     gate,
		breaker:  breaker,
		retryCfg: retryCfg,
		pageSize: pageSize,
	}
}

// endpointForJob maps a crawl job type to its API path segment.
func endpointForJob(jobType types.JobType) (string, error) {
	switch jobType {
	case types.JobRetweets:
		return "retweeted_by", nil
	case types.JobReplies:
		return "replies", nil
	case types.JobQuotes:
		return "quotes", nil
	default:
		return "", fmt.Errorf("no engagement endpoint for job type %q", jobType)
	}
}

// FetchEngagements requests one page of engagements of the given type for
// a post. Retryable failures (429, 5xx, timeouts) are retried locally with
// bounded exponential backoff; fatal failures surface immediately.
func (c *HTTPClient) FetchEngagements(ctx context.Context, jobType types.JobType, postID, cursor string) (*EngagementPage, error) {
	if c.apiKey == "" {
		return nil, apierrors.NewConfigError("engagement API key not configured")
	}

	endpoint, err := endpointForJob(jobType)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	requestURL := fmt.Sprintf("%s/2/posts/%s/%s?%s", c.baseURL, url.PathEscape(postID), endpoint, q.Encode())

	var page EngagementPage
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		body, reqErr := c.doRequest(ctx, requestURL)
		if reqErr != nil {
			return reqErr
		}

		var raw struct {
			Data []RawEngagement `json:"data"`
			Meta struct {
				NextToken   string `json:"next_token"`
				HasMore     bool   `json:"has_more"`
				ResultCount int    `json:"result_count"`
			} `json:"meta"`
		}
		if unmarshalErr := json.Unmarshal(body, &raw); unmarshalErr != nil {
			return apierrors.NewTransientAPIError("failed to parse engagement page", unmarshalErr)
		}

		page = EngagementPage{
			Records:    raw.Data,
			NextCursor: raw.Meta.NextToken,
			HasMore:    raw.Meta.HasMore,
		}
		return nil
	}, apierrors.IsRetryable, apierrors.RetryAfterHint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s page for post %s: %w", jobType, postID, err)
	}

	return &page, nil
}

// FetchMetrics requests the current metric snapshot for a post.
func (c *HTTPClient) FetchMetrics(ctx context.Context, postID string) (*PostMetrics, error) {
	if c.apiKey == "" {
		return nil, apierrors.NewConfigError("engagement API key not configured")
	}

	requestURL := fmt.Sprintf("%s/2/posts/%s/metrics", c.baseURL, url.PathEscape(postID))

	var metrics PostMetrics
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		body, reqErr := c.doRequest(ctx, requestURL)
		if reqErr != nil {
			return reqErr
		}

		var raw struct {
			Data PostMetrics `json:"data"`
		}
		if unmarshalErr := json.Unmarshal(body, &raw); unmarshalErr != nil {
			return apierrors.NewTransientAPIError("failed to parse metrics", unmarshalErr)
		}
		metrics = raw.Data
		return nil
	}, apierrors.IsRetryable, apierrors.RetryAfterHint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics for post %s: %w", postID, err)
	}

	return &metrics, nil
}

// doRequest performs one gated, breaker-guarded HTTP request. When the
// circuit is open it returns circuitbreaker.ErrOpen before consuming a
// rate-limit slot.
func (c *HTTPClient) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	var body []byte
	err := c.breaker.Execute(ctx, func() error {
		b, sendErr := c.send(ctx, requestURL)
		if sendErr != nil {
			return sendErr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// send performs one gated HTTP request and classifies the outcome.
func (c *HTTPClient) send(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter admission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport timeouts are retried like 5xx.
		return nil, apierrors.NewTransientAPIError("engagement API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, apierrors.NewTransientAPIError("failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apierrors.NewRateLimitError(parseRetryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apierrors.NewAuthError(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, apierrors.NewNotFoundError("post", requestURL)
	case resp.StatusCode >= 500:
		return nil, apierrors.NewTransientAPIError(
			fmt.Sprintf("engagement API returned status %d", resp.StatusCode), nil)
	default:
		return nil, fmt.Errorf("engagement API returned unexpected status %d", resp.StatusCode)
	}
}

// parseRetryAfter reads the Retry-After header in seconds, or zero.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
