package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/tracing"
)

// Request is one unit of work for the executor.
type Request struct {
	Class  metrics.Class
	URL    string
	UserID string
}

// ExecutorOptions configures how requests are built and observed.
type ExecutorOptions struct {
	Method         string
	Headers        map[string]string
	UserHeader     string // header carrying Request.UserID; empty disables it
	UserQueryParam string // query parameter carrying Request.UserID; empty disables it
	Tracer         trace.Tracer
	Propagate      bool
	Logger         *zap.Logger
	LogFailures    bool
}

// Executor issues single HTTP requests and classifies the result. It is safe
// for concurrent use.
type Executor struct {
	client         *http.Client
	method         string
	headers        http.Header
	userHeader     string
	userQueryParam string
	tracer         trace.Tracer
	propagate      bool
	logger         *zap.Logger
	logFailures    bool
}

func NewExecutor(client *http.Client, opts ExecutorOptions) (*Executor, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := http.Header{}
	for key, value := range opts.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	if strings.ContainsAny(opts.UserHeader, "\r\n") {
		return nil, fmt.Errorf("invalid user header %q", opts.UserHeader)
	}
	userHeader := strings.TrimSpace(opts.UserHeader)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		client:         client,
		method:         method,
		headers:        headers,
		userHeader:     http.CanonicalHeaderKey(userHeader),
		userQueryParam: strings.TrimSpace(opts.UserQueryParam),
		tracer:         opts.Tracer,
		propagate:      opts.Propagate,
		logger:         logger,
		logFailures:    opts.LogFailures,
	}, nil
}

// Execute performs one request. Latency runs from just before dispatch,
// connection setup included, until the body is drained or the request fails.
// Every failure is folded into the returned outcome.
func (e *Executor) Execute(ctx context.Context, req Request) metrics.Outcome {
	outcome := metrics.Outcome{Class: req.Class}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = tracing.StartRequestSpan(ctx, e.tracer, e.method, string(req.Class), req.URL)
	}

	httpReq, err := e.build(ctx, req)
	if err != nil {
		outcome.Start = time.Now()
		outcome.Kind = metrics.KindNetworkError
		outcome.Reason = metrics.ReasonOther
		e.finish(span, req, outcome, err)
		return outcome
	}

	outcome.Start = time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		outcome.Latency = time.Since(outcome.Start)
		outcome.Kind = metrics.KindNetworkError
		outcome.Reason = metrics.ErrorReason(err)
		e.finish(span, req, outcome, err)
		return outcome
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	outcome.Latency = time.Since(outcome.Start)
	outcome.StatusCode = resp.StatusCode

	if drainErr != nil {
		outcome.Kind = metrics.KindNetworkError
		outcome.Reason = metrics.ErrorReason(drainErr)
		if outcome.Reason == metrics.ReasonOther {
			outcome.Reason = metrics.ReasonBodyRead
		}
		e.finish(span, req, outcome, drainErr)
		return outcome
	}

	outcome.Kind = metrics.Classify(resp.StatusCode, nil)
	var statusErr error
	if outcome.Kind != metrics.KindSuccess {
		statusErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	e.finish(span, req, outcome, statusErr)
	return outcome
}

func (e *Executor) build(ctx context.Context, req Request) (*http.Request, error) {
	target := req.URL
	if e.userQueryParam != "" && req.UserID != "" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse target: %w", err)
		}
		q := u.Query()
		q.Set(e.userQueryParam, req.UserID)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, e.method, target, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header = e.headers.Clone()
	if e.userHeader != "" && req.UserID != "" {
		httpReq.Header.Set(e.userHeader, req.UserID)
	}
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, httpReq.Header)
	}
	return httpReq, nil
}

func (e *Executor) finish(span trace.Span, req Request, outcome metrics.Outcome, err error) {
	if span != nil {
		tracing.EndSpan(span, err,
			tracing.AttrStatusCode.Int(outcome.StatusCode),
			tracing.AttrOutcomeKind.String(outcome.Kind.String()),
			tracing.AttrUserID.String(req.UserID),
		)
	}
	if e.logFailures && err != nil {
		e.logger.Debug("request failed",
			zap.String("class", string(req.Class)),
			zap.String("url", req.URL),
			zap.Int("status", outcome.StatusCode),
			zap.Stringer("outcome", outcome.Kind),
			zap.String("reason", outcome.Reason),
			zap.Duration("latency", outcome.Latency),
			zap.Error(err),
		)
	}
}

// NewClient returns a client tuned for sustained load: connections are kept
// alive and up to maxIdlePerHost of them are pooled per target host.
func NewClient(timeout time.Duration, maxIdlePerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxIdlePerHost < 32 {
		maxIdlePerHost = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          max(256, maxIdlePerHost*2),
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
