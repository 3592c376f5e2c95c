package source

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sells-group/search-harvest/internal/resilience"
	"github.com/sells-group/search-harvest/pkg/searchconsole"
	"github.com/sells-group/search-harvest/pkg/searchconsole/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const site = "sc-domain:example.com"

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func expectedRequest(offset int64, size int) searchconsole.QueryRequest {
	return searchconsole.QueryRequest{
		StartDate:  "2024-05-01",
		EndDate:    "2024-05-01",
		Dimensions: []string{"query", "page"},
		Type:       "web",
		RowLimit:   size,
		StartRow:   offset,
	}
}

func TestFetchPage_MapsRows(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Query", mock.Anything, site, expectedRequest(25000, 3)).Return(&searchconsole.QueryResponse{
		Rows: []searchconsole.Row{
			{Keys: []string{"widgets", "https://example.com/w?utm=1"}, Clicks: 4, Impressions: 90, Position: 1.5},
			{Keys: []string{"gadgets", "https://example.com/g"}, Clicks: 0, Impressions: 12, Position: 7.25},
		},
	}, nil)

	c := New(client, Config{SiteURL: site})
	page, err := c.FetchPage(context.Background(), day, 25000, 3)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, int64(25002), page.NextOffset)
	assert.True(t, page.Last(3))

	r := page.Records[0]
	assert.Equal(t, "widgets", r.Query)
	assert.Equal(t, "https://example.com/w?utm=1", r.URL)
	assert.Equal(t, int64(4), r.Clicks)
	assert.Equal(t, int64(90), r.Impressions)
	assert.Equal(t, day, r.Date)
}

func TestFetchPage_Empty(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Query", mock.Anything, site, expectedRequest(0, 25000)).Return(&searchconsole.QueryResponse{}, nil)

	page, err := New(client, Config{SiteURL: site}).FetchPage(context.Background(), day, 0, 25000)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, int64(0), page.NextOffset)
	assert.True(t, page.Last(25000))
}

func TestFetchPage_FullPageIsNotLast(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Query", mock.Anything, site, mock.Anything).Return(&searchconsole.QueryResponse{
		Rows: []searchconsole.Row{
			{Keys: []string{"a", "https://x/1"}},
			{Keys: []string{"b", "https://x/2"}},
		},
	}, nil)

	page, err := New(client, Config{SiteURL: site}).FetchPage(context.Background(), day, 0, 2)
	require.NoError(t, err)
	assert.False(t, page.Last(2))
}

func TestFetchPage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "401 is auth",
			err:      &searchconsole.APIError{StatusCode: http.StatusUnauthorized},
			wantKind: "auth",
		},
		{
			name:     "403 is auth",
			err:      &searchconsole.APIError{StatusCode: http.StatusForbidden},
			wantKind: "auth",
		},
		{
			name:     "token refresh failure is auth",
			err:      &oauth2.RetrieveError{ErrorCode: "invalid_grant"},
			wantKind: "auth",
		},
		{
			name:     "429 is transient",
			err:      &searchconsole.APIError{StatusCode: http.StatusTooManyRequests},
			wantKind: "transient",
			check: func(t *testing.T, err error) {
				var te *resilience.TransientError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
			},
		},
		{
			name:     "503 is transient",
			err:      &searchconsole.APIError{StatusCode: http.StatusServiceUnavailable},
			wantKind: "transient",
		},
		{
			name:     "connection reset is transient",
			err:      syscall.ECONNRESET,
			wantKind: "transient",
		},
		{
			name:     "400 is permanent",
			err:      &searchconsole.APIError{StatusCode: http.StatusBadRequest},
			wantKind: "permanent",
		},
		{
			name:     "undecodable body is malformed",
			err:      &searchconsole.DecodeError{Err: errors.New("unexpected end of JSON input")},
			wantKind: "malformed_response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockClient(t)
			client.On("Query", mock.Anything, site, mock.Anything).Return(nil, tt.err).Once()

			_, err := New(client, Config{SiteURL: site}).FetchPage(context.Background(), day, 0, 10)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, resilience.Kind(err))
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestFetchPage_SingleAttempt(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Query", mock.Anything, site, mock.Anything).
		Return(nil, &searchconsole.APIError{StatusCode: http.StatusBadGateway}).Once()

	_, err := New(client, Config{SiteURL: site}).FetchPage(context.Background(), day, 0, 10)
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "Query", 1)
}

func TestFetchPage_MalformedKeys(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Query", mock.Anything, site, mock.Anything).Return(&searchconsole.QueryResponse{
		Rows: []searchconsole.Row{{Keys: []string{"only-query"}}},
	}, nil)

	_, err := New(client, Config{SiteURL: site}).FetchPage(context.Background(), day, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrMalformedResponse)
}

func TestFetchPage_CancelledWhileWaiting(t *testing.T) {
	client := mocks.NewMockClient(t)
	c := New(client, Config{SiteURL: site, RequestsPerSecond: 0.001, Burst: 1})
	c.limiter.Allow() // drain the single token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchPage(ctx, day, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
