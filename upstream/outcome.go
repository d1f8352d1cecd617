package upstream

import (
	"mime"
	"net/http"
	"strings"
)

// Kind tags the variant of an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindTimeout
	KindNetworkError
	KindNonJSON
	KindUpstreamError
	KindMissingConfig
)

var kindNames = [...]string{
	KindSuccess:       "success",
	KindTimeout:       "timeout",
	KindNetworkError:  "network_error",
	KindNonJSON:       "non_json",
	KindUpstreamError: "upstream_error",
	KindMissingConfig: "missing_config",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Outcome is the result of exactly one dispatch attempt. Status, Header and
// Body are set for Success, NonJSON and UpstreamError; Err is set for
// Timeout, NetworkError and MissingConfig.
type Outcome struct {
	Kind   Kind
	Status int
	Header http.Header
	Body   []byte
	Err    error
}

func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Redirect reports whether the upstream answered with a 3xx that was not
// followed.
func (o Outcome) Redirect() bool {
	return o.Kind == KindSuccess && o.Status >= 300 && o.Status < 400
}

// Message returns a short description of the outcome suitable for logs.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return http.StatusText(o.Status)
}

// IsJSON reports whether a Content-Type value denotes a JSON document,
// including vendor types such as application/problem+json.
func IsJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
