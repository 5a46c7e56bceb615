package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.PageSize = 2
	cfg.MaxRetries = 3
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 5 * time.Millisecond
	return cfg
}

func study(nctID string) string {
	return fmt.Sprintf(`{"protocolSection": {"identificationModule": {"nctId": %q}}}`, nctID)
}

func pageBody(token string, studies ...string) string {
	body := `{"studies": [`
	for i, s := range studies {
		if i > 0 {
			body += ","
		}
		body += s
	}
	body += `]`
	if token != "" {
		body += fmt.Sprintf(`, "nextPageToken": %q`, token)
	}
	return body + `}`
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var ids []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		raw, ok := s.Next(ctx)
		if !ok {
			break
		}
		var probe struct {
			ProtocolSection struct {
				IdentificationModule struct {
					NCTID string `json:"nctId"`
				} `json:"identificationModule"`
			} `json:"protocolSection"`
		}
		require.NoError(t, json.Unmarshal(raw, &probe))
		ids = append(ids, probe.ProtocolSection.IdentificationModule.NCTID)
	}
	return ids
}

func TestStudiesWalksAllPages(t *testing.T) {
	var tokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.URL.Query().Get("pageToken"))
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, pageBody("t1", study("NCT001"), study("NCT002")))
		case "t1":
			fmt.Fprint(w, pageBody("t2", study("NCT003"), study("NCT004")))
		case "t2":
			fmt.Fprint(w, pageBody("", study("NCT005")))
		default:
			http.Error(w, "unknown token", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), getTestLogger())
	stream := client.Studies(context.Background(), nil)

	ids := collect(t, stream)
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"NCT001", "NCT002", "NCT003", "NCT004", "NCT005"}, ids)
	assert.Equal(t, []string{"", "t1", "t2"}, tokens)
	assert.Zero(t, client.Retries())
}

func TestStudiesEmptyFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"studies": []}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), getTestLogger())
	stream := client.Studies(context.Background(), nil)

	ids := collect(t, stream)
	require.NoError(t, stream.Err())
	assert.Empty(t, ids)
}

func TestStudiesDeltaFilter(t *testing.T) {
	var filter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter = r.URL.Query().Get("filter.advanced")
		fmt.Fprint(w, `{"studies": []}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), getTestLogger())
	updatedSince := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	stream := client.Studies(context.Background(), &updatedSince)

	collect(t, stream)
	require.NoError(t, stream.Err())
	assert.Equal(t, "AREA[LastUpdatePostDate]RANGE[2024-06-01,MAX]", filter)
}

func TestStudiesRetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name      string
		firstCode int
	}{
		{name: "retries 503", firstCode: http.StatusServiceUnavailable},
		{name: "retries 429", firstCode: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				if attempts == 1 {
					http.Error(w, "unavailable", tt.firstCode)
					return
				}
				fmt.Fprint(w, pageBody("", study("NCT001")))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL), getTestLogger())
			stream := client.Studies(context.Background(), nil)

			ids := collect(t, stream)
			require.NoError(t, stream.Err())
			assert.Equal(t, []string{"NCT001"}, ids)
			assert.Equal(t, 2, attempts)
			assert.GreaterOrEqual(t, client.Retries(), int64(1))
		})
	}
}

func TestStudiesDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), getTestLogger())
	stream := client.Studies(context.Background(), nil)

	ids := collect(t, stream)
	assert.Empty(t, ids)
	assert.Equal(t, 1, attempts)

	err := stream.Err()
	require.Error(t, err)
	assert.Equal(t, clovererrors.KindExtraction, clovererrors.KindOf(err))
	assert.False(t, clovererrors.IsTransient(err))
}

func TestStudiesExhaustedRetriesIsTransientAndCarriesToken(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, pageBody("t1", study("NCT001")))
			return
		}
		attempts++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), getTestLogger())
	stream := client.Studies(context.Background(), nil)

	// the first page still comes through before the walk dies
	ids := collect(t, stream)
	assert.Equal(t, []string{"NCT001"}, ids)

	err := stream.Err()
	require.Error(t, err)
	assert.Equal(t, clovererrors.KindExtraction, clovererrors.KindOf(err))
	assert.True(t, clovererrors.IsTransient(err))
	assert.Contains(t, err.Error(), "t1")
	assert.Equal(t, 3, attempts)
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Base: time.Second, Cap: 10 * time.Second}

	assert.Equal(t, time.Second, policy.backoff(0))
	assert.Equal(t, 2*time.Second, policy.backoff(1))
	assert.Equal(t, 4*time.Second, policy.backoff(2))
	assert.Equal(t, 8*time.Second, policy.backoff(3))
	assert.Equal(t, 10*time.Second, policy.backoff(4))
	assert.Equal(t, 10*time.Second, policy.backoff(10))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&StatusError{StatusCode: 429}))
	assert.True(t, isRetryable(&StatusError{StatusCode: 500}))
	assert.True(t, isRetryable(&StatusError{StatusCode: 503}))
	assert.False(t, isRetryable(&StatusError{StatusCode: 400}))
	assert.False(t, isRetryable(&StatusError{StatusCode: 404}))
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
}

func TestStudiesHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageBody("next", study("NCT001"), study("NCT002")))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())

	client := NewClient(testConfig(server.URL), getTestLogger())
	stream := client.Studies(ctx, nil)

	_, ok := stream.Next(ctx)
	require.True(t, ok)
	cancel()

	// the walk winds down once the context is gone
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := stream.Next(context.Background()); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		default:
		}
	}
}
