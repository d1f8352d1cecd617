// Package failure maps dispatcher outcomes and gateway-side refusals onto the
// small error taxonomy surfaced to the dashboard.
package failure

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/podded/dashgate/upstream"
)

type Kind string

const (
	KindUnauthorized        Kind = "Unauthorized"
	KindMissingConfig       Kind = "MissingConfig"
	KindUpstreamTimeout     Kind = "UpstreamTimeout"
	KindUpstreamUnreachable Kind = "UpstreamUnreachable"
	KindUpstreamRejected    Kind = "UpstreamRejected"
	KindBadUpstreamPayload  Kind = "BadUpstreamPayload"
	KindBadRequest          Kind = "BadRequest"
)

// Error is a classified gateway failure. It is immutable: fields are only
// set by the constructors in this package.
type Error struct {
	kind    Kind
	status  int
	message string
	detail  any
}

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Status() int     { return e.status }
func (e *Error) Message() string { return e.message }
func (e *Error) Detail() any     { return e.detail }

func (e *Error) Error() string {
	return string(e.kind) + ": " + e.message
}

// Outage reports whether the failure means the upstream is unavailable rather
// than refusing this particular request. List endpoints degrade outages to an
// empty result.
func (e *Error) Outage() bool {
	switch e.kind {
	case KindUpstreamTimeout, KindUpstreamUnreachable, KindBadUpstreamPayload:
		return true
	case KindUpstreamRejected:
		return e.status >= 500
	default:
		return false
	}
}

func (e *Error) MarshalJSON() ([]byte, error) {
	body := struct {
		Error  string `json:"error"`
		Kind   Kind   `json:"kind"`
		Detail any    `json:"detail,omitempty"`
	}{e.message, e.kind, e.detail}
	return json.Marshal(body)
}

func newError(kind Kind, status int, message string, detail any) *Error {
	return &Error{kind: kind, status: status, message: message, detail: detail}
}

func Unauthorized() *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, "authentication required", nil)
}

func MissingConfig() *Error {
	return newError(KindMissingConfig, http.StatusInternalServerError, "upstream base URL is not configured", nil)
}

// BadPayload reports an upstream body that could not be normalized.
func BadPayload(err error) *Error {
	var detail any
	if err != nil {
		detail = err.Error()
	}
	return newError(KindBadUpstreamPayload, http.StatusBadGateway, "upstream returned an unexpected payload", detail)
}

// BadRequest reports an inbound body that could not be read.
func BadRequest(err error) *Error {
	var detail any
	if err != nil {
		detail = err.Error()
	}
	return newError(KindBadRequest, http.StatusBadRequest, "invalid request body", detail)
}

// Classify maps an outcome to an Error. It returns nil only for a successful
// outcome and never panics.
func Classify(o upstream.Outcome) *Error {
	switch o.Kind {
	case upstream.KindSuccess:
		return nil
	case upstream.KindMissingConfig:
		return MissingConfig()
	case upstream.KindTimeout:
		return newError(KindUpstreamTimeout, http.StatusBadGateway, "upstream request timed out", nil)
	case upstream.KindNetworkError:
		return newError(KindUpstreamUnreachable, http.StatusBadGateway, "upstream is unreachable", errText(o.Err))
	case upstream.KindNonJSON:
		return newError(KindBadUpstreamPayload, http.StatusBadGateway, "upstream returned a non-JSON response", snippet(o.Body))
	case upstream.KindUpstreamError:
		status := o.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		raw := string(o.Body)
		return newError(KindUpstreamRejected, status, rejectionMessage(o.Body, status), nilIfEmpty(raw))
	default:
		return newError(KindUpstreamUnreachable, http.StatusBadGateway, "unrecognized upstream outcome", nil)
	}
}

// rejectionMessage prefers the upstream's own message field.
func rejectionMessage(body []byte, status int) string {
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		for _, k := range []string{"message", "error", "detail", "msg"} {
			if s, ok := parsed[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return "upstream responded " + http.StatusText(status)
}

func errText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func snippet(body []byte) any {
	const max = 256
	s := strings.TrimSpace(string(body))
	if s == "" {
		return nil
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}
