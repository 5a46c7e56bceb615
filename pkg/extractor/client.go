// Package extractor pulls study records out of the ClinicalTrials.gov V2 API
// as a lazy, finite stream with per-page retries.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

const (
	// DefaultBaseURL is the V2 studies endpoint
	DefaultBaseURL = "https://clinicaltrials.gov/api/v2/studies"

	// DefaultPageSize is the page size requested per fetch; the API caps at 1000
	DefaultPageSize = 100

	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (50MB)
	MaxResponseSize = 50 * 1024 * 1024
)

// Config holds API client configuration.
type Config struct {
	BaseURL         string
	PageSize        int
	Timeout         time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultConfig returns the default API client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		PageSize:        DefaultPageSize,
		Timeout:         DefaultTimeout,
		MaxRetries:      5,
		BackoffBase:     time.Second,
		BackoffCap:      10 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// Client walks the paginated studies endpoint. One client owns one connection
// pool with a lifetime of one run.
type Client struct {
	client  *http.Client
	cfg     Config
	logger  ectologger.Logger
	retries atomic.Int64
}

// NewClient creates a new API client.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Retries returns the number of retried page fetches so far.
func (c *Client) Retries() int64 {
	return c.retries.Load()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// page is one API response.
type page struct {
	Studies       []json.RawMessage `json:"studies"`
	NextPageToken string            `json:"nextPageToken"`
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected API status %d", e.StatusCode)
}

// AdvancedFilter renders the delta high-water mark into the API's advanced
// filter syntax, using the UTC calendar date.
func AdvancedFilter(updatedSince time.Time) string {
	return fmt.Sprintf("AREA[LastUpdatePostDate]RANGE[%s,MAX]", updatedSince.UTC().Format("2006-01-02"))
}

func (c *Client) fetchPage(ctx context.Context, params url.Values) (*page, error) {
	reqURL := c.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	metrics.APIRequestDuration.Observe(time.Since(start).Seconds())
	metrics.APIRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var p page
	decoder := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize))
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}
	return &p, nil
}

func (c *Client) fetchPageWithRetry(ctx context.Context, params url.Values) (*page, error) {
	policy := RetryPolicy{
		MaxAttempts: c.cfg.MaxRetries,
		Base:        c.cfg.BackoffBase,
		Cap:         c.cfg.BackoffCap,
	}
	return withRetry(ctx, policy, func(attempt int, err error) {
		c.retries.Add(1)
		metrics.APIRetriesTotal.Inc()
		c.logger.WithContext(ctx).WithError(err).Warnf("Retrying study page fetch (attempt %d/%d)", attempt+1, policy.MaxAttempts)
	}, func() (*page, error) {
		return c.fetchPage(ctx, params)
	})
}

// Studies returns a stream of raw study payloads, optionally bounded below by
// updatedSince. Pages are fetched lazily in server order; the next-page token
// always comes from the last successful page.
func (c *Client) Studies(ctx context.Context, updatedSince *time.Time) *Stream {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	if updatedSince != nil {
		params.Set("filter.advanced", AdvancedFilter(*updatedSince))
	}

	s := &Stream{
		ch: make(chan json.RawMessage, c.cfg.PageSize),
	}

	go c.produce(ctx, params, s)

	return s
}

func (c *Client) produce(ctx context.Context, params url.Values, s *Stream) {
	defer close(s.ch)

	pageToken := ""
	for {
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		p, err := c.fetchPageWithRetry(ctx, params)
		if err != nil {
			s.fail(c.classify(err, pageToken))
			return
		}

		for _, study := range p.Studies {
			select {
			case s.ch <- study:
			case <-ctx.Done():
				s.fail(clovererrors.New(clovererrors.KindCanceled, "extraction canceled").WithCause(ctx.Err()))
				return
			}
		}

		if p.NextPageToken == "" {
			return
		}
		pageToken = p.NextPageToken
	}
}

// classify turns an exhausted or unretryable fetch error into the run error
// that aborts the current load. 429/5xx/timeouts advise a retry of the whole
// run; other 4xx are fatal.
func (c *Client) classify(err error, pageToken string) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return clovererrors.New(clovererrors.KindCanceled, "extraction canceled").WithCause(ctxErr)
	}

	re := clovererrors.Newf(clovererrors.KindExtraction, "fetch studies page (token %q)", pageToken).WithCause(err)
	if isRetryable(err) {
		re.AsTransient()
	}
	return re
}
