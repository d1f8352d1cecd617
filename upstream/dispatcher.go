// Package upstream issues calls to the dashboard's backend REST service.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/podded/dashgate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrMissingConfig = errors.New("upstream base URL is not configured")

	histogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashgate_upstream_seconds",
		Help:    "A histogram of upstream call durations by route descriptor and outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"descriptor", "outcome"})
)

// Headers that describe the inbound connection, its framing or its content
// coding and are never copied onto the outbound request. The transport
// negotiates compression itself and only decodes what it asked for.
var droppedHeaders = []string{
	"Host",
	"Accept-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
	"Te",
	"Trailer",
	"Upgrade",
	"Proxy-Authorization",
	"Proxy-Authenticate",
	"Proxy-Connection",
}

type (
	Options struct {
		BaseURL   string
		Timeout   time.Duration
		UserAgent string
		// RateLimit is the maximum number of calls per second; 0 disables it.
		RateLimit int
		Transport TransportOptions
	}

	// Call describes one outbound request.
	Call struct {
		Credential  dashgate.Credential
		Method      string
		Path        string
		Query       string
		Body        []byte
		ContentType string
		// Header, when set, is the inbound header set forwarded in
		// passthrough mode after sanitation.
		Header http.Header
		// Timeout overrides the dispatcher default when positive.
		Timeout time.Duration
		// Descriptor names the call in the user agent and metrics.
		Descriptor string
		// Cacheable routes the call through the response cache.
		Cacheable bool
		// RequireJSON turns a 2xx non-JSON body into a NonJSON outcome.
		RequireJSON bool
	}

	Dispatcher struct {
		baseURL   string
		timeout   time.Duration
		userAgent string
		client    *http.Client
		cached    *http.Client
		limiter   *limiter
	}
)

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	base := newBaseTransport(opts.Transport.RelaxedTLS)
	return &Dispatcher{
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		client:    newClient(base),
		cached:    newClient(newCachingTransport(base, opts.Transport.MemcachedAddr)),
		limiter:   newLimiter(opts.RateLimit),
	}
}

// Configured reports whether an upstream base URL is set.
func (d *Dispatcher) Configured() bool {
	return d.baseURL != ""
}

// URL joins the base, path and raw query.
func (d *Dispatcher) URL(path, query string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := d.baseURL + path
	if query = strings.TrimPrefix(query, "?"); query != "" {
		u += "?" + query
	}
	return u
}

// Dispatch performs exactly one upstream attempt bounded by the call timeout.
// Nothing started by Dispatch outlives its return.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (out Outcome) {
	if !d.Configured() {
		return Outcome{Kind: KindMissingConfig, Err: ErrMissingConfig}
	}

	start := time.Now()
	defer func() {
		histogram.WithLabelValues(call.Descriptor, out.Kind.String()).Observe(time.Since(start).Seconds())
	}()

	timeout := d.timeout
	if call.Timeout > 0 {
		timeout = call.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := d.buildRequest(ctx, call)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: errors.Wrap(err, "Failed to build request")}
	}

	if err := d.limiter.wait(ctx); err != nil {
		return failed(ctx, errors.Wrap(err, "waiting for rate limiter"))
	}

	client := d.client
	if call.Cacheable && req.Method == http.MethodGet {
		client = d.cached
	}

	resp, err := client.Do(req)
	if err != nil {
		return failed(ctx, errors.Wrap(err, "Error trying to execute request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(ctx, errors.Wrap(err, "Error reading upstream response"))
	}

	out = Outcome{
		Kind:   KindSuccess,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		if call.RequireJSON && resp.StatusCode < 300 && len(bytes.TrimSpace(body)) > 0 && !IsJSON(resp.Header.Get("Content-Type")) {
			out.Kind = KindNonJSON
		}
	default:
		out.Kind = KindUpstreamError
	}
	return out
}

func (d *Dispatcher) buildRequest(ctx context.Context, call Call) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	hasBody := method != http.MethodGet && method != http.MethodHead && len(call.Body) > 0
	if hasBody {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.URL(call.Path, call.Query), body)
	if err != nil {
		return nil, err
	}

	if call.Header != nil {
		req.Header = call.Header.Clone()
		for _, h := range connectionHeaders(call.Header) {
			req.Header.Del(h)
		}
		for _, h := range droppedHeaders {
			req.Header.Del(h)
		}
	}

	req.Header.Set("Accept", "application/json")
	if req.Header.Get("Authorization") == "" && !call.Credential.Empty() {
		req.Header.Set("Authorization", call.Credential.Value)
	}
	if hasBody {
		ct := strings.TrimSpace(call.ContentType)
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	} else {
		req.Header.Del("Content-Type")
	}

	if call.Descriptor != "" {
		req.Header.Set("User-Agent", fmt.Sprintf("%s - %s", d.userAgent, call.Descriptor))
	} else {
		req.Header.Set("User-Agent", fmt.Sprintf("%s - naked", d.userAgent))
	}
	return req, nil
}

// connectionHeaders lists the extra hop-by-hop headers named in Connection.
func connectionHeaders(h http.Header) []string {
	var names []string
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// failed maps a transport error to Timeout or NetworkError. A deadline hit on
// the call's own context is a timeout whatever the transport reported.
func failed(ctx context.Context, err error) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Outcome{Kind: KindTimeout, Err: err}
	}
	log.Printf("Error making upstream request: %s", err)
	return Outcome{Kind: KindNetworkError, Err: err}
}
