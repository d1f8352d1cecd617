package normalize

// Login is the result of a successful sign-in. Token is kept server side and
// never written to the browser.
type Login struct {
	Token string `json:"-"`
	User  *User  `json:"user,omitempty"`
}

var (
	logins = adapter[Login]{name: "login", build: buildLogin}

	LoginAdapter Shaper = logins
)

func LoginRecord(raw []byte) (Login, error) {
	return logins.record(raw)
}

func buildLogin(r record, _ int) (Login, bool) {
	l := Login{Token: r.str("token", "accessToken", "access_token", "backendToken")}
	if l.Token == "" {
		return Login{}, false
	}
	if ur := r.obj("user"); ur != nil {
		if u, ok := buildUser(ur, 0); ok {
			l.User = &u
		}
	}
	return l, true
}
