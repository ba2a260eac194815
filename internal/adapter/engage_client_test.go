package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagement-monitor/internal/circuitbreaker"
	apierrors "github.com/engagement-monitor/internal/errors"
	"github.com/engagement-monitor/internal/retry"
	"github.com/engagement-monitor/internal/types"
)

func newTestClient(t *testing.T, serverURL string) *HTTPClient {
	t.Helper()
	client := NewHTTPClient(&HTTPClientConfig{
		BaseURL:        serverURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		PageSize:       2,
	})
	// Fast backoff so retry paths finish quickly.
	client.retryCfg = &retry.Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
	return client
}

func TestFetchEngagementsPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/2/posts/p1/retweeted_by", r.URL.Path)

		cursor := r.URL.Query().Get("cursor")
		w.Header().Set("Content-Type", "application/json")
		switch cursor {
		case "":
			fmt.Fprint(w, `{"data":[{"user_id":"u1","username":"alice"},{"user_id":"u2","username":"bob"}],"meta":{"next_token":"c2","has_more":true,"result_count":2}}`)
		case "c2":
			fmt.Fprint(w, `{"data":[{"user_id":"u3","username":"carol"}],"meta":{"next_token":"","has_more":false,"result_count":1}}`)
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	page1, err := client.FetchEngagements(ctx, types.JobRetweets, "p1", "")
	require.NoError(t, err)
	assert.Len(t, page1.Records, 2)
	assert.Equal(t, "c2", page1.NextCursor)
	assert.True(t, page1.HasMore)

	page2, err := client.FetchEngagements(ctx, types.JobRetweets, "p1", page1.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page2.Records, 1)
	assert.Equal(t, "u3", page2.Records[0].UserID)
	assert.False(t, page2.HasMore)
}

func TestFetchEngagementsRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[],"meta":{"next_token":"","has_more":false}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.FetchEngagements(context.Background(), types.JobReplies, "p1", "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchEngagementsRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":[{"user_id":"u1"}],"meta":{"has_more":false}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.FetchEngagements(context.Background(), types.JobQuotes, "p1", "")
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchEngagementsAuthErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchEngagements(context.Background(), types.JobRetweets, "p1", "")
	require.Error(t, err)
	assert.True(t, apierrors.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fatal errors must not be retried")
}

func TestFetchEngagementsMissingKey(t *testing.T) {
	client := NewHTTPClient(&HTTPClientConfig{BaseURL: "http://unused", APIKey: ""})
	_, err := client.FetchEngagements(context.Background(), types.JobRetweets, "p1", "")
	require.Error(t, err)

	catErr := apierrors.Categorize(err)
	assert.Equal(t, apierrors.CategoryConfig, catErr.Category)
}

func TestFetchEngagementsExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchEngagements(context.Background(), types.JobRetweets, "p1", "")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchEngagementsCircuitOpensOnDegradedUpstream(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	breaker := circuitbreaker.New(&circuitbreaker.Config{
		Name:         "engage-api",
		TripAfter:    2,
		CountFailure: apierrors.IsRetryable,
	})
	client := NewHTTPClient(&HTTPClientConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		Breaker:        breaker,
		RequestTimeout: 2 * time.Second,
	})
	client.retryCfg = &retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	ctx := context.Background()

	_, err := client.FetchEngagements(ctx, types.JobRetweets, "p1", "")
	require.Error(t, err)
	_, err = client.FetchEngagements(ctx, types.JobRetweets, "p1", "")
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	// Circuit open: the next fetch fails fast without reaching the API.
	_, err = client.FetchEngagements(ctx, types.JobRetweets, "p1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.False(t, apierrors.IsRetryable(err), "open circuit must surface to the job queue, not retry locally")
}

func TestFetchMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/posts/p9/metrics", r.URL.Path)
		fmt.Fprint(w, `{"data":{"view_count":1200,"like_count":40,"retweet_count":12,"reply_count":7,"quote_count":3}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	metrics, err := client.FetchMetrics(context.Background(), "p9")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), metrics.Views)
	assert.Equal(t, int64(12), metrics.Retweets)
}

func TestEndpointForJob(t *testing.T) {
	tests := []struct {
		jobType types.JobType
		want    string
		wantErr bool
	}{
		{jobType: types.JobRetweets, want: "retweeted_by"},
		{jobType: types.JobReplies, want: "replies"},
		{jobType: types.JobQuotes, want: "quotes"},
		{jobType: types.JobMetrics, wantErr: true},
		{jobType: types.JobType("bogus"), wantErr: true},
	}

	for _, tt := range tests {
		got, err := endpointForJob(tt.jobType)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
