// Package httpclient builds instrumented HTTP clients for outbound calls.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// Default connection pool settings
	defaultDialKeepAlive         = 10 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxIdleConns          = 0
	defaultMaxConnsPerHost       = 5
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond
)

type options struct {
	timeout      time.Duration
	providerName string
	headers      map[string]string
	roundTripper http.RoundTripper
	clientTrace  bool
}

type Option func(*options)

func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithProviderName prefixes span names, e.g. "eth-rpc POST".
func WithProviderName(name string) Option {
	return func(o *options) { o.providerName = name }
}

// WithHeaders adds headers to every request, such as an RPC provider key.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.roundTripper = rt }
}

// WithClientTrace records DNS, connect and TLS events on the request span.
func WithClientTrace(enable bool) Option {
	return func(o *options) { o.clientTrace = enable }
}

// New returns an *http.Client whose transport emits a span and the otelhttp
// client metrics for every request.
func New(opts ...Option) *http.Client {
	o := options{timeout: defaultRequestTimeout, providerName: "http"}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.roundTripper
	if rt == nil {
		rt = &http.Transport{
			DialContext: (&net.Dialer{
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxConnsPerHost:       defaultMaxConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		}
	}
	if len(o.headers) > 0 {
		rt = &headerTransport{next: rt, headers: o.headers}
	}

	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return o.providerName + " " + r.Method
		}),
	}
	if o.clientTrace {
		otelOpts = append(otelOpts, otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}))
	}

	return &http.Client{
		Timeout:   o.timeout,
		Transport: otelhttp.NewTransport(rt, otelOpts...),
	}
}

type headerTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}
