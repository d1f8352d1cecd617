package upstream

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/gregjones/httpcache"
	httpmemcache "github.com/gregjones/httpcache/memcache"
)

// TransportOptions controls how upstream connections are made.
type TransportOptions struct {
	// RelaxedTLS skips certificate verification. Callers must only set it for
	// non-production deployments.
	RelaxedTLS bool

	// MemcachedAddr backs the response cache for cacheable calls. An empty
	// address keeps the cache in process memory.
	MemcachedAddr string
}

func newBaseTransport(relaxed bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if relaxed {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- local development against self-signed upstreams only
	}
	return t
}

// newCachingTransport wraps base with an RFC 7234 cache. Only non-user-specific
// lookups are routed through it since the cache key ignores credentials.
func newCachingTransport(base http.RoundTripper, memcachedAddr string) http.RoundTripper {
	var cache httpcache.Cache
	if memcachedAddr != "" {
		cache = httpmemcache.NewWithClient(memcache.New(memcachedAddr))
	} else {
		cache = httpcache.NewMemoryCache()
	}
	t := httpcache.NewTransport(cache)
	t.Transport = base
	return t
}

func newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		// Redirects are surfaced to the caller, never followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
