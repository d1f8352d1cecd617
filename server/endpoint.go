package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/podded/dashgate/credential"
	"github.com/podded/dashgate/failure"
	"github.com/podded/dashgate/normalize"
	"github.com/podded/dashgate/upstream"
)

// Endpoint is the composed pipeline for one route: resolve the credential,
// dispatch upstream, normalize the body, classify failures. Every request
// gets exactly one response.
type Endpoint struct {
	route Route
	svr   *Server
}

func (svr *Server) endpoint(route Route) *Endpoint {
	return &Endpoint{route: route, svr: svr}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := http.StatusInternalServerError
	defer func() {
		histogram.WithLabelValues(e.route.Name, fmt.Sprintf("%d", code)).Observe(time.Since(start).Seconds())
	}()

	if !e.svr.dispatcher.Configured() {
		code = e.fail(w, failure.MissingConfig())
		return
	}

	cred := e.svr.resolver.Resolve(r)
	if e.svr.cfg.Debug {
		w.Header().Set("X-Credential-Source", cred.Source.String())
	}
	if !e.route.Public && cred.Empty() {
		code = e.fail(w, failure.Unauthorized())
		return
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.svr.cfg.BodyLimit))
		if err != nil {
			code = e.fail(w, failure.BadRequest(err))
			return
		}
		body = b
	}

	outcome := e.svr.dispatcher.Dispatch(r.Context(), upstream.Call{
		Credential:  cred,
		Method:      r.Method,
		Path:        e.route.upstreamPath(r),
		Query:       forwardQuery(r, !e.svr.cfg.Production()),
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Header:      e.passthroughHeader(r),
		Descriptor:  e.route.Name,
		Cacheable:   e.route.Cacheable,
		RequireJSON: e.route.Shape != nil,
	})
	if gerr := failure.Classify(outcome); gerr != nil {
		log.Printf("Upstream %s failed for %s: %s (%s)", e.route.Upstream, e.route.Name, gerr.Kind(), outcome.Message())
		code = e.fail(w, gerr)
		return
	}

	if outcome.Redirect() {
		code = relayRedirect(w, outcome)
		return
	}

	code = e.succeed(w, r, outcome)
}

// fail writes gerr, or an empty list when a list route hits an outage.
func (e *Endpoint) fail(w http.ResponseWriter, gerr *failure.Error) int {
	if e.route.Mode == ModeList && gerr.Outage() {
		degraded.WithLabelValues(e.route.Name).Inc()
		log.Printf("Serving empty list for %s: %s", e.route.Name, gerr)
		writeJSON(w, http.StatusOK, []struct{}{})
		return http.StatusOK
	}
	writeJSON(w, gerr.Status(), gerr)
	return gerr.Status()
}

func (e *Endpoint) succeed(w http.ResponseWriter, r *http.Request, o upstream.Outcome) int {
	shape := e.route.Shape
	switch {
	case shape == nil:
		writeJSON(w, o.Status, ackFrom(o.Body))
		return o.Status

	case e.route.Mode == ModeList:
		items, dropped, err := shape.List(o.Body)
		if err != nil {
			return e.fail(w, failure.BadPayload(errors.Wrapf(err, "normalize %s", shape.Name())))
		}
		if dropped > 0 {
			w.Header().Set("X-Dropped-Records", fmt.Sprintf("%d", dropped))
		}
		writeJSON(w, http.StatusOK, items)
		return http.StatusOK

	case e.route.IssuesSession:
		login, err := normalize.LoginRecord(o.Body)
		if err != nil {
			return e.fail(w, failure.BadPayload(errors.Wrap(err, "normalize login")))
		}
		e.svr.setSessionCookie(w, r, login.Token)
		writeJSON(w, http.StatusOK, login)
		return http.StatusOK

	case e.route.Mode == ModeRead:
		rec, err := shape.One(o.Body)
		if err != nil {
			return e.fail(w, failure.BadPayload(errors.Wrapf(err, "normalize %s", shape.Name())))
		}
		writeJSON(w, http.StatusOK, rec)
		return http.StatusOK

	default:
		status := o.Status
		if status == http.StatusNoContent || len(o.Body) == 0 {
			if status == http.StatusNoContent {
				status = http.StatusOK
			}
			writeJSON(w, status, writeAck{Success: true})
			return status
		}
		if rec, err := shape.One(o.Body); err == nil {
			writeJSON(w, status, rec)
			return status
		}
		writeJSON(w, status, ackFrom(o.Body))
		return status
	}
}

func relayRedirect(w http.ResponseWriter, o upstream.Outcome) int {
	if loc := o.Header.Get("Location"); loc != "" {
		w.Header().Set("Location", loc)
	}
	w.WriteHeader(o.Status)
	return o.Status
}

// passthroughHeader returns the inbound headers to forward for passthrough
// routes. Dashboard cookies stay on this side of the gateway.
func (e *Endpoint) passthroughHeader(r *http.Request) http.Header {
	if !e.route.Passthrough {
		return nil
	}
	h := r.Header.Clone()
	h.Del("Cookie")
	return h
}

// forwardQuery returns the inbound query, without the development token when
// stripToken is set.
func forwardQuery(r *http.Request, stripToken bool) string {
	if r.URL.RawQuery == "" || !stripToken {
		return r.URL.RawQuery
	}
	q := r.URL.Query()
	if !q.Has(credential.QueryToken) {
		return r.URL.RawQuery
	}
	q.Del(credential.QueryToken)
	return q.Encode()
}
