// Package fetch retrieves addition records from peer registries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"registry-federation/internal/addition"
	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
)

// EndpointPath is appended to a peer URI to reach its additions endpoint.
const EndpointPath = "wp-json/git-updater/v1/get-additions-data/"

// maxBodyBytes caps how much of a peer response is read.
const maxBodyBytes = 8 << 20

var (
	ErrPeerUnreachable   = errors.New("peer unreachable")
	ErrUnexpectedStatus  = errors.New("unexpected status from peer")
	ErrMalformedResponse = errors.New("malformed peer response")
)

// Endpoint returns the additions endpoint for a peer URI.
func Endpoint(uri string) string {
	return strings.TrimRight(uri, "/") + "/" + EndpointPath
}

// Fetcher performs remote fetches against peer endpoints.
type Fetcher struct {
	client  *http.Client
	config  peers.PeerConfig
	logger  *zap.Logger
	metrics *metrics.Registry
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(cfg peers.PeerConfig, logger *zap.Logger, reg *metrics.Registry, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	f := &Fetcher{
		client:  &http.Client{},
		config:  cfg,
		logger:  logger,
		metrics: reg,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch posts to the peer's additions endpoint and decodes the returned list.
// On any failure it returns a non-nil empty list along with the error, so
// callers that ignore the error still see "no additions".
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]addition.Record, error) {
	if f.config.Timeout.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout.FetchTimeout)
		defer cancel()
	}

	endpoint := Endpoint(uri)
	var records []addition.Record
	attempts := 0

	err := peers.Retry(ctx, f.config.Retry, func() error {
		attempts++
		f.metrics.Inc(metrics.FetchAttemptsTotal)
		if attempts > 1 {
			f.metrics.Inc(metrics.FetchRetriesTotal)
		}

		var err error
		records, err = f.do(ctx, endpoint)
		return err
	})
	if err != nil {
		f.metrics.Inc(metrics.FetchFailuresTotal)
		if errors.Is(err, ErrMalformedResponse) {
			f.metrics.Inc(metrics.FetchMalformedTotal)
		}
		f.logger.Warn("peer fetch failed",
			zap.String("peer", uri),
			zap.String("endpoint", endpoint),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return []addition.Record{}, err
	}

	f.metrics.Inc(metrics.FetchSuccessTotal)
	f.logger.Debug("peer fetch succeeded",
		zap.String("peer", uri),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// do performs a single request. Transport errors and 5xx responses are
// retryable; everything else is permanent.
func (f *Fetcher) do(ctx context.Context, endpoint string) ([]addition.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, peers.Permanent(fmt.Errorf("%w: %v", ErrPeerUnreachable, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, peers.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrPeerUnreachable, err)
	}
	records, err := addition.Decode(body)
	if err != nil {
		return nil, peers.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return records, nil
}
