package server

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/podded/dashgate"
	"github.com/podded/dashgate/config"
	"github.com/podded/dashgate/credential"
	"github.com/podded/dashgate/normalize"
)

type upstreamCall struct {
	method string
	path   string
	query  string
	auth   string
	cookie string
	body   string
}

type fakeUpstream struct {
	*httptest.Server
	calls  chan upstreamCall
	served int32
}

func newFakeUpstream(t *testing.T, handler http.HandlerFunc) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{calls: make(chan upstreamCall, 16)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.served, 1)
		b, _ := io.ReadAll(r.Body)
		f.calls <- upstreamCall{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			cookie: r.Header.Get("Cookie"),
			body:   string(b),
		}
		handler(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func textReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func testConfig(upstreamURL string) config.Config {
	return config.Config{
		UpstreamURL:    upstreamURL,
		TimeoutMS:      2000,
		Mode:           "production",
		UserAgent:      "dashgate-test",
		BodyLimit:      1 << 20,
		CookieMaxAge:   time.Hour,
		SessionCookies: []string{"next-auth.session-token"},
	}
}

func newTestServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	svr, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return svr.Handler()
}

func do(h http.Handler, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rd)
	for _, m := range mutate {
		m(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withAuth(v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", v) }
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestSupplierListNormalized(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `{"data": [{"id": "a1", "name": "SUP01 : John Doe", "secretField": 1}, {"foo": "bar"}]}`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/suppliers?search=john", "", withCookie(credential.CookieAccessToken, "tok"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	var got []normalize.Supplier
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []normalize.Supplier{{ID: "a1", SupCode: "SUP01", DisplayName: "John Doe", Status: normalize.StatusActive}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suppliers (-want +got):\n%s", diff)
	}
	if strings.Contains(w.Body.String(), "secretField") {
		t.Fatal("upstream field leaked")
	}
	if w.Header().Get("X-Dropped-Records") != "1" {
		t.Fatalf("dropped header = %q", w.Header().Get("X-Dropped-Records"))
	}

	c := <-up.calls
	if c.path != "/suppliers" || c.query != "search=john" || c.auth != "Bearer tok" {
		t.Fatalf("upstream call = %+v", c)
	}
	if c.cookie != "" {
		t.Fatalf("dashboard cookies forwarded: %q", c.cookie)
	}
}

func TestListOutageDegradesToEmpty(t *testing.T) {
	up := newFakeUpstream(t, textReply(http.StatusServiceUnavailable, "maintenance"))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings", "", withAuth("Bearer x"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("body = %q, want []", w.Body.String())
	}
}

func TestListUnreachableDegradesToEmpty(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	base := up.URL
	up.Close()
	h := newTestServer(t, testConfig(base))

	for _, path := range []string{"/api/rubber-types", "/api/locations", "/api/users", "/api/suppliers"} {
		w := do(h, http.MethodGet, path, "", withAuth("Bearer x"))
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Fatalf("%s: %d %q", path, w.Code, w.Body.String())
		}
	}
}

func TestListClientRejectionSurfaces(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusUnauthorized, `{"message": "token expired"}`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings", "", withAuth("Bearer stale"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeError(t, w); body["kind"] != "UpstreamRejected" || body["error"] != "token expired" {
		t.Fatalf("body = %v", body)
	}
}

func TestWriteRejectionSurfacesUpstreamText(t *testing.T) {
	up := newFakeUpstream(t, textReply(http.StatusServiceUnavailable, "upstream db is down"))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodPost, "/api/bookings", `{"date":"2026-03-01"}`, withAuth("Bearer x"))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decodeError(t, w)
	if body["kind"] != "UpstreamRejected" {
		t.Fatalf("kind = %v", body["kind"])
	}
	if !strings.Contains(w.Body.String(), "upstream db is down") {
		t.Fatalf("body %s lacks upstream text", w.Body)
	}
}

func TestMissingConfigRegardlessOfCredential(t *testing.T) {
	h := newTestServer(t, testConfig(""))

	for name, mutate := range map[string]func(*http.Request){
		"anonymous": func(*http.Request) {},
		"header":    withAuth("Bearer x"),
		"cookie":    withCookie(credential.CookieBackendToken, "y"),
	} {
		for _, target := range []string{"/api/suppliers", "/api/auth/login"} {
			method := http.MethodGet
			if strings.HasSuffix(target, "login") {
				method = http.MethodPost
			}
			w := do(h, method, target, "", mutate)
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("%s %s: status = %d, want 500", name, target, w.Code)
			}
			if body := decodeError(t, w); body["kind"] != "MissingConfig" {
				t.Fatalf("%s %s: kind = %v", name, target, body["kind"])
			}
		}
	}
}

func TestUnauthorizedShortCircuits(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `[]`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeError(t, w); body["kind"] != "Unauthorized" {
		t.Fatalf("kind = %v", body["kind"])
	}
	if n := atomic.LoadInt32(&up.served); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestDevQueryTokenUnreachableInProduction(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `[]`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings?token=dev-secret", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if n := atomic.LoadInt32(&up.served); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestDevQueryTokenInDevelopment(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `[]`))
	cfg := testConfig(up.URL)
	cfg.Mode = "development"
	cfg.Debug = true
	h := newTestServer(t, cfg)

	w := do(h, http.MethodGet, "/api/bookings?date=2026-03-01&token=dev-secret", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if src := w.Header().Get("X-Credential-Source"); src != dashgate.SourceDevQueryToken.String() {
		t.Fatalf("credential source = %q", src)
	}
	c := <-up.calls
	if c.auth != "Bearer dev-secret" {
		t.Fatalf("auth = %q", c.auth)
	}
	if c.query != "date=2026-03-01" {
		t.Fatalf("token forwarded upstream: %q", c.query)
	}
}

func TestDebugHeaderOnlyWhenEnabled(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `[]`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings", "", withAuth("Bearer x"))
	if w.Header().Get("X-Credential-Source") != "" {
		t.Fatal("provenance header without debug flag")
	}
}

func TestSessionTierResolves(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `{"_id": "u1", "username": "ops"}`))
	cfg := testConfig(up.URL)
	cfg.SessionSecret = "s3cret"
	h := newTestServer(t, cfg)

	signed, err := credential.SignSession("s3cret", "from-session", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := do(h, http.MethodGet, "/api/auth/me", "", withCookie("next-auth.session-token", signed))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if c := <-up.calls; c.auth != "Bearer from-session" {
		t.Fatalf("auth = %q", c.auth)
	}
}

func TestReadRecordAndBadPayload(t *testing.T) {
	up := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings/b%201", "/bookings/b 1":
			jsonReply(http.StatusOK, `{"data": {"_id": "b 1", "date": "2026-03-01", "queue": 2}}`)(w, r)
		case "/bookings/code/QR-9":
			textReply(http.StatusOK, "<html>")(w, r)
		default:
			jsonReply(http.StatusOK, `{"message": "nothing"}`)(w, r)
		}
	})
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings/b%201", "", withAuth("Bearer x"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	var b normalize.Booking
	json.Unmarshal(w.Body.Bytes(), &b)
	if b.ID != "b 1" || b.Sequence != 2 || b.Status != normalize.StatusActive {
		t.Fatalf("booking = %+v", b)
	}

	w = do(h, http.MethodGet, "/api/bookings/code/QR-9", "", withAuth("Bearer x"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("non-json status = %d", w.Code)
	}
	if body := decodeError(t, w); body["kind"] != "BadUpstreamPayload" {
		t.Fatalf("kind = %v", body["kind"])
	}

	w = do(h, http.MethodGet, "/api/suppliers/s1", "", withAuth("Bearer x"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("invalid record status = %d", w.Code)
	}
}

func TestWritesForwardRawBody(t *testing.T) {
	up := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonReply(http.StatusCreated, `{"message": "created", "data": {"_id": "s9", "supCode": "SUP09", "displayName": "New"}}`)(w, r)
	})
	h := newTestServer(t, testConfig(up.URL))

	payload := `{"supCode":"SUP09",  "name":"New" }`
	w := do(h, http.MethodPost, "/api/suppliers", payload, withAuth("Bearer x"), func(r *http.Request) {
		r.Header.Set("Content-Type", "application/json; charset=utf-8")
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	var s normalize.Supplier
	json.Unmarshal(w.Body.Bytes(), &s)
	if s.ID != "s9" || s.SupCode != "SUP09" {
		t.Fatalf("supplier = %+v", s)
	}
	if c := <-up.calls; c.body != payload || c.method != http.MethodPost {
		t.Fatalf("upstream call = %+v", c)
	}

	w = do(h, http.MethodDelete, "/api/suppliers/s9", "", withAuth("Bearer x"))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("delete = %d %s", w.Code, w.Body)
	}
	if c := <-up.calls; c.path != "/suppliers/s9" || c.method != http.MethodDelete {
		t.Fatalf("upstream call = %+v", c)
	}
}

func TestWriteTimeoutAndListTimeout(t *testing.T) {
	release := make(chan struct{})
	up := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)
	cfg := testConfig(up.URL)
	cfg.TimeoutMS = 100
	h := newTestServer(t, cfg)

	w := do(h, http.MethodPatch, "/api/bookings/b1", `{"status":"cancelled"}`, withAuth("Bearer x"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("write status = %d, want 502", w.Code)
	}
	if body := decodeError(t, w); body["kind"] != "UpstreamTimeout" {
		t.Fatalf("kind = %v", body["kind"])
	}

	w = do(h, http.MethodGet, "/api/bookings", "", withAuth("Bearer x"))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("list = %d %q", w.Code, w.Body.String())
	}
}

func TestLoginIssuesCookieWithoutLeakingToken(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `{"token": "backend-tok", "user": {"_id": "u1", "username": "ops", "role": "admin"}}`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"pw"}`, withCookie("next-auth.session-token", "dashboard-only"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if strings.Contains(w.Body.String(), "backend-tok") {
		t.Fatal("token leaked to the browser")
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == credential.CookieBackendToken {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != "backend-tok" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie = %+v", cookie)
	}

	c := <-up.calls
	if c.cookie != "" {
		t.Fatalf("passthrough forwarded cookies: %q", c.cookie)
	}
	if c.auth != "" {
		t.Fatalf("anonymous login sent authorization %q", c.auth)
	}
}

func TestLoginRejected(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusUnauthorized, `{"message": "invalid credentials"}`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodPost, "/api/auth/login", `{}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeError(t, w); body["error"] != "invalid credentials" {
		t.Fatalf("body = %v", body)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatal("cookie set on failed login")
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	h := newTestServer(t, testConfig(""))

	w := do(h, http.MethodPost, "/api/auth/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	for _, name := range []string{credential.CookieBackendToken, credential.CookieAccessToken, credential.CookieToken, "next-auth.session-token"} {
		if !cleared[name] {
			t.Fatalf("cookie %s not cleared", name)
		}
	}
}

func TestPassthroughDecodesCompressedUpstream(t *testing.T) {
	var acceptEncoding atomic.Value
	up := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding.Store(r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			io.WriteString(w, `{"_id": "u1", "username": "alice"}`)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		io.WriteString(zw, `{"_id": "u1", "username": "alice"}`)
		zw.Close()
	})
	h := newTestServer(t, testConfig(up.URL))

	for _, target := range []string{"/api/auth/me", "/api/users/u1"} {
		w := do(h, http.MethodGet, target, "", withAuth("Bearer x"), func(r *http.Request) {
			r.Header.Set("Accept-Encoding", "gzip, deflate, br")
		})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body %s", target, w.Code, w.Body)
		}
		var u normalize.User
		if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil || u.Username != "alice" {
			t.Fatalf("%s: user = %+v (%v)", target, u, err)
		}
		if got := acceptEncoding.Load(); got != "gzip" {
			t.Fatalf("%s: upstream accept-encoding = %v, want gzip", target, got)
		}
	}
}

func TestProductionForwardsTokenQuery(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `[]`))
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/bookings?token=abc&date=2026-03-01", "", withAuth("Bearer x"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	c := <-up.calls
	if c.query != "token=abc&date=2026-03-01" || c.auth != "Bearer x" {
		t.Fatalf("upstream call = %+v", c)
	}
}

func TestRedirectRelayed(t *testing.T) {
	up := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://sso.example.com/login", http.StatusFound)
	})
	h := newTestServer(t, testConfig(up.URL))

	w := do(h, http.MethodGet, "/api/auth/me", "", withAuth("Bearer x"))
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://sso.example.com/login" {
		t.Fatalf("location = %q", loc)
	}
	if n := atomic.LoadInt32(&up.served); n != 1 {
		t.Fatalf("upstream served %d requests, redirect followed", n)
	}
}

func TestBodyLimit(t *testing.T) {
	up := newFakeUpstream(t, jsonReply(http.StatusOK, `{}`))
	cfg := testConfig(up.URL)
	cfg.BodyLimit = 8
	h := newTestServer(t, cfg)

	w := do(h, http.MethodPost, "/api/locations", `{"name":"far too long"}`, withAuth("Bearer x"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if n := atomic.LoadInt32(&up.served); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestPing(t *testing.T) {
	h := newTestServer(t, testConfig(""))
	w := do(h, http.MethodGet, "/ping", "")
	var v dashgate.Version
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != dashgate.BuiltVersion {
		t.Fatalf("version = %+v", v)
	}
}

func TestNewServerRejectsNegativeLimits(t *testing.T) {
	cfg := testConfig("")
	cfg.RateLimit = -1
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("expected error")
	}
}
