// Package credential resolves the bearer credential for an inbound dashboard
// request. Tiers are tried in a fixed order and the first non-empty one wins:
//
//  1. the Authorization header
//  2. the backend_token, access_token and token cookies
//  3. the session-token collaborator
//  4. the ?token= query parameter, only outside production
package credential

import (
	"net/http"

	"github.com/podded/dashgate"
)

const (
	CookieBackendToken = "backend_token"
	CookieAccessToken  = "access_token"
	CookieToken        = "token"

	// QueryToken is the development-only query parameter.
	QueryToken = "token"
)

var cookieTiers = []struct {
	name   string
	source dashgate.Source
}{
	{CookieBackendToken, dashgate.SourceCookieBackendToken},
	{CookieAccessToken, dashgate.SourceCookieAccessToken},
	{CookieToken, dashgate.SourceCookieToken},
}

// SessionLookup extracts a backend token from an external session. Errors
// mean "no session credential" and never fail resolution.
type SessionLookup interface {
	Lookup(r *http.Request) (string, error)
}

type Resolver struct {
	session         SessionLookup
	allowQueryToken bool
}

// NewResolver builds a resolver. The query-token tier exists only when
// production is false.
func NewResolver(session SessionLookup, production bool) *Resolver {
	return &Resolver{
		session:         session,
		allowQueryToken: !production,
	}
}

// Resolve returns the first credential found, or the zero Credential. It makes
// no network calls and does not modify r.
func (res *Resolver) Resolve(r *http.Request) dashgate.Credential {
	if r == nil {
		return dashgate.Credential{}
	}

	if cred := dashgate.NewCredential(r.Header.Get("Authorization"), dashgate.SourceHeaderAuth); !cred.Empty() {
		return cred
	}

	for _, tier := range cookieTiers {
		c, err := r.Cookie(tier.name)
		if err != nil {
			continue
		}
		if cred := dashgate.NewCredential(c.Value, tier.source); !cred.Empty() {
			return cred
		}
	}

	if res.session != nil {
		// Session failures fall through to the next tier.
		if v, err := res.session.Lookup(r); err == nil {
			if cred := dashgate.NewCredential(v, dashgate.SourceSessionToken); !cred.Empty() {
				return cred
			}
		}
	}

	if res.allowQueryToken && r.URL != nil {
		if cred := dashgate.NewCredential(r.URL.Query().Get(QueryToken), dashgate.SourceDevQueryToken); !cred.Empty() {
			return cred
		}
	}

	return dashgate.Credential{}
}
