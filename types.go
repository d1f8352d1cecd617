package dashgate

import "strings"

type (
	// Source records which credential tier supplied the bearer value.
	Source int

	// Credential is the authorization value resolved for one inbound request.
	Credential struct {
		Value  string `json:"-"`
		Source Source `json:"source"`
	}
)

const (
	SourceNone Source = iota
	SourceHeaderAuth
	SourceCookieBackendToken
	SourceCookieAccessToken
	SourceCookieToken
	SourceSessionToken
	SourceDevQueryToken
)

var sourceNames = map[Source]string{
	SourceNone:               "none",
	SourceHeaderAuth:         "header",
	SourceCookieBackendToken: "cookie:backend_token",
	SourceCookieAccessToken:  "cookie:access_token",
	SourceCookieToken:        "cookie:token",
	SourceSessionToken:       "session",
	SourceDevQueryToken:      "query:token",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Empty reports whether no tier produced a credential.
func (c Credential) Empty() bool {
	return c.Source == SourceNone || strings.TrimSpace(c.Value) == ""
}

// authSchemes are scheme words that carry no credential on their own.
var authSchemes = map[string]bool{"bearer": true, "basic": true, "token": true, "digest": true}

// NewCredential builds a credential from a raw token. Values that already carry
// an auth scheme ("Basic xyz", "Bearer xyz") are kept verbatim, bare tokens are
// wrapped as bearer tokens. A scheme word alone yields the zero Credential.
func NewCredential(raw string, source Source) Credential {
	raw = strings.TrimSpace(raw)
	if raw == "" || source == SourceNone || authSchemes[strings.ToLower(raw)] {
		return Credential{}
	}
	if !HasScheme(raw) {
		raw = "Bearer " + raw
	}
	return Credential{Value: raw, Source: source}
}

// HasScheme reports whether v looks like "<scheme> <credentials>".
func HasScheme(v string) bool {
	i := strings.IndexByte(v, ' ')
	if i <= 0 || strings.TrimSpace(v[i:]) == "" {
		return false
	}
	for _, r := range v[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
