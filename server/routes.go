package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/podded/dashgate/normalize"
)

// Mode selects how an endpoint treats success and failure.
type Mode int

const (
	// ModeList returns a normalized array and degrades upstream outages to [].
	ModeList Mode = iota
	// ModeRead returns one normalized record.
	ModeRead
	// ModeWrite forwards the body and returns the normalized record or an ack.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeList:
		return "list"
	case ModeRead:
		return "read"
	default:
		return "write"
	}
}

// Route is the configuration of one gateway endpoint.
type Route struct {
	Name    string
	Pattern string
	// Upstream is the target path; {name} segments are filled from the
	// inbound path values.
	Upstream string
	Mode     Mode
	Shape    normalize.Shaper
	// Public routes are dispatched without a credential.
	Public    bool
	Cacheable bool
	// Passthrough forwards the sanitized inbound headers.
	Passthrough bool
	// IssuesSession stores the login token in the backend cookie.
	IssuesSession bool
}

// Routes returns the gateway route table.
func Routes() []Route {
	var routes []Route
	routes = append(routes, resource("bookings", "/api/bookings", "/bookings", normalize.BookingAdapter)...)
	routes = append(routes,
		Route{Name: "bookings.by_code", Pattern: "GET /api/bookings/code/{code}", Upstream: "/bookings/code/{code}", Mode: ModeRead, Shape: normalize.BookingAdapter},
		Route{Name: "bookings.checkin", Pattern: "POST /api/bookings/{id}/checkin", Upstream: "/bookings/{id}/checkin", Mode: ModeWrite, Shape: normalize.BookingAdapter},
	)
	routes = append(routes, resource("suppliers", "/api/suppliers", "/suppliers", normalize.SupplierAdapter)...)
	routes = append(routes, resource("users", "/api/users", "/users", normalize.UserAdapter)...)
	routes = append(routes,
		Route{Name: "locations.list", Pattern: "GET /api/locations", Upstream: "/locations", Mode: ModeList, Shape: normalize.LookupAdapter, Cacheable: true},
		Route{Name: "locations.create", Pattern: "POST /api/locations", Upstream: "/locations", Mode: ModeWrite, Shape: normalize.LookupAdapter},
		Route{Name: "rubber_types.list", Pattern: "GET /api/rubber-types", Upstream: "/rubber-types", Mode: ModeList, Shape: normalize.LookupAdapter, Cacheable: true},
		Route{Name: "auth.login", Pattern: "POST /api/auth/login", Upstream: "/auth/login", Mode: ModeWrite, Shape: normalize.LoginAdapter, Public: true, Passthrough: true, IssuesSession: true},
		Route{Name: "auth.me", Pattern: "GET /api/auth/me", Upstream: "/auth/me", Mode: ModeRead, Shape: normalize.UserAdapter, Passthrough: true},
	)
	return routes
}

// resource expands the list/create/read/update/delete routes of a collection.
func resource(name, prefix, upstreamPrefix string, shape normalize.Shaper) []Route {
	item := upstreamPrefix + "/{id}"
	return []Route{
		{Name: name + ".list", Pattern: "GET " + prefix, Upstream: upstreamPrefix, Mode: ModeList, Shape: shape},
		{Name: name + ".create", Pattern: "POST " + prefix, Upstream: upstreamPrefix, Mode: ModeWrite, Shape: shape},
		{Name: name + ".get", Pattern: "GET " + prefix + "/{id}", Upstream: item, Mode: ModeRead, Shape: shape},
		{Name: name + ".replace", Pattern: "PUT " + prefix + "/{id}", Upstream: item, Mode: ModeWrite, Shape: shape},
		{Name: name + ".update", Pattern: "PATCH " + prefix + "/{id}", Upstream: item, Mode: ModeWrite, Shape: shape},
		{Name: name + ".delete", Pattern: "DELETE " + prefix + "/{id}", Upstream: item, Mode: ModeWrite, Shape: shape},
	}
}

// upstreamPath fills the route's {name} placeholders from r's path values.
func (rt Route) upstreamPath(r *http.Request) string {
	path := rt.Upstream
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return path
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			return path
		}
		name := path[open+1 : open+end]
		path = path[:open] + url.PathEscape(r.PathValue(name)) + path[open+end+1:]
	}
}
