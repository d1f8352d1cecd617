package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/podded/dashgate"
	"github.com/podded/dashgate/config"
	"github.com/podded/dashgate/credential"
	"github.com/podded/dashgate/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	Server struct {
		cfg        config.Config
		resolver   *credential.Resolver
		dispatcher *upstream.Dispatcher
		mux        *http.ServeMux
	}
)

var (
	histogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashgate_requests_seconds",
		Help:    "A histogram of gateway response times by route and status code",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"route", "code"})

	degraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashgate_degraded_lists_total",
		Help: "List responses replaced by an empty result because the upstream was unavailable",
	}, []string{"route"})
)

// NewServer wires the resolver, dispatcher and route table from cfg. A
// missing upstream base URL is not an error here: every gateway route answers
// with MissingConfig until one is configured.
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.RateLimit < 0 || cfg.BodyLimit < 0 {
		return nil, errors.New("rate limit and body limit must not be negative")
	}
	if cfg.UpstreamURL == "" {
		log.Println("DASHGATE_UPSTREAM_URL is not set; gateway routes will answer 500 MissingConfig")
	}

	var session credential.SessionLookup
	if cfg.SessionSecret != "" {
		session = credential.NewJWTSession(cfg.SessionSecret, cfg.SessionCookies)
	}

	svr := &Server{
		cfg:      cfg,
		resolver: credential.NewResolver(session, cfg.Production()),
		dispatcher: upstream.NewDispatcher(upstream.Options{
			BaseURL:   cfg.UpstreamURL,
			Timeout:   cfg.Timeout(),
			UserAgent: cfg.UserAgent,
			RateLimit: cfg.RateLimit,
			Transport: upstream.TransportOptions{
				RelaxedTLS:    cfg.RelaxedTLS(),
				MemcachedAddr: cfg.MemcachedAddr,
			},
		}),
		mux: http.NewServeMux(),
	}

	for _, route := range Routes() {
		svr.mux.Handle(route.Pattern, svr.endpoint(route))
	}
	svr.mux.HandleFunc("POST /api/auth/logout", svr.handleLogout)
	svr.mux.HandleFunc("GET /ping", svr.handlePingRequest)

	return svr, nil
}

func (svr *Server) Handler() http.Handler {
	return svr.mux
}

// RunServer serves metrics on the metrics address and the gateway on the main
// address. It returns when the gateway listener fails.
func (svr *Server) RunServer() error {
	mserv := http.NewServeMux()
	mserv.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(svr.cfg.MetricsAddr, mserv); err != nil {
			log.Printf("Metrics listener stopped: %s", err)
		}
	}()

	hs := &http.Server{
		Addr:              svr.cfg.Addr,
		Handler:           svr.mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Writes must outlive the upstream bound so timeouts still get a body.
		WriteTimeout: svr.cfg.Timeout() + 10*time.Second,
	}
	log.Printf("dashgate %s listening on %s (production=%t)", dashgate.BuiltVersion, svr.cfg.Addr, svr.cfg.Production())
	return errors.Wrap(hs.ListenAndServe(), "gateway listener")
}

func (svr *Server) handlePingRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dashgate.BuiltVersion)
}
