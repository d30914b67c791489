package lavalink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "github.com/keshon/lavalink/internal/log"
	"github.com/keshon/lavalink/pkg/retrylimit"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/keshon/lavalink/internal/lavalink"

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// SearchResult is a successful lookup: at least one track, in node order.
type SearchResult struct {
	LoadType string
	Tracks   []Track
}

// Primary is the track a caller should play when it does not care about
// alternatives.
func (r *SearchResult) Primary() Track { return r.Tracks[0] }

type ResolverConfig struct {
	BaseURL  string // http://host:port
	Password string

	HTTPClient *http.Client
	Limiter    *retrylimit.AdaptiveLimiter
	Retry      retrylimit.RetryConfig
	Timeout    time.Duration

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Resolver looks tracks up through the node's /loadtracks endpoint.
type Resolver struct {
	base     string
	password string
	http     *http.Client
	limiter  *retrylimit.AdaptiveLimiter
	retry    retrylimit.RetryConfig
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *Metrics
}

func NewResolver(cfg ResolverConfig) *Resolver {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = retrylimit.DefaultRetryConfig()
		retry.MaxAttempts = 3
	}
	logger := applog.WithComponent(cfg.Logger, "resolver")
	retry.Logger = logger
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Resolver{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		password: cfg.Password,
		http:     client,
		limiter:  cfg.Limiter,
		retry:    retry,
		timeout:  cfg.Timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search resolves query. It returns ErrNoMatch when the node answers
// NO_MATCHES or an empty list, a *TransportError when the node cannot be
// reached, and a *StatusError or *DecodeError for bad answers.
func (r *Resolver) Search(ctx context.Context, query string) (*SearchResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "lavalink.search")
	defer span.End()
	span.SetAttributes(attribute.String("lavalink.query", query))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var res LoadResult
	err := retrylimit.WithRetryConfig(ctx, func() error {
		var err error
		res, err = r.load(ctx, query)
		return err
	}, r.limiter, r.retry)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrTransport) {
		// Timed out or cancelled before any request reached the wire.
		err = &TransportError{Op: "loadtracks", Err: err}
	}
	if err != nil {
		r.metrics.searches.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn().Err(err).Str("query", query).Msg("search failed")
		return nil, err
	}

	switch {
	case res.LoadType == LoadFailed:
		msg := "unknown error"
		if res.Exception != nil {
			msg = res.Exception.Message
		}
		r.metrics.searches.WithLabelValues("load_failed").Inc()
		return nil, fmt.Errorf("%w: %s", ErrLoadFailed, msg)
	case res.LoadType == LoadNoMatches || len(res.Tracks) == 0:
		r.metrics.searches.WithLabelValues("no_match").Inc()
		r.logger.Debug().Str("query", query).Msg("no matches")
		return nil, ErrNoMatch
	}

	r.metrics.searches.WithLabelValues("found").Inc()
	span.SetAttributes(attribute.Int("lavalink.tracks", len(res.Tracks)))
	r.logger.Debug().
		Str("query", query).
		Str("load_type", res.LoadType).
		Int("tracks", len(res.Tracks)).
		Str("title", res.Tracks[0].Info.Title).
		Msg("search resolved")
	return &SearchResult{LoadType: res.LoadType, Tracks: res.Tracks}, nil
}

// SearchAsync runs Search in its own goroutine and invokes done exactly once
// with either a result or an error.
func (r *Resolver) SearchAsync(ctx context.Context, query string, done func(*SearchResult, error)) {
	go func() {
		done(r.Search(ctx, query))
	}()
}

// load performs a single request. Decode failures are fatal to the retry
// loop; transport failures and 429/5xx are retried.
func (r *Resolver) load(ctx context.Context, query string) (LoadResult, error) {
	u := r.base + "/loadtracks?" + url.Values{"identifier": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return LoadResult{}, retrylimit.Fatal(fmt.Errorf("lavalink: build request: %w", err))
	}
	req.Header.Set("Authorization", r.password)
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return LoadResult{}, &TransportError{Op: "loadtracks", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return LoadResult{}, serr
		}
		return LoadResult{}, retrylimit.Fatal(serr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoadResult{}, &TransportError{Op: "loadtracks read", Err: err}
	}
	res, err := DecodeLoadResult(body)
	if err != nil {
		return LoadResult{}, retrylimit.Fatal(err)
	}
	return res, nil
}
