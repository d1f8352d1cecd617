// Package config assembles the process-wide gateway configuration from the
// environment. It is read once at startup and never mutated afterwards.
package config

import (
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	UpstreamURL    string        `env:"DASHGATE_UPSTREAM_URL"`
	TimeoutMS      int           `env:"DASHGATE_TIMEOUT_MS" envDefault:"10000"`
	InsecureTLS    bool          `env:"DASHGATE_INSECURE_TLS"`
	Debug          bool          `env:"DASHGATE_DEBUG"`
	Mode           string        `env:"DASHGATE_MODE" envDefault:"production"`
	Addr           string        `env:"DASHGATE_ADDR" envDefault:":13270"`
	MetricsAddr    string        `env:"DASHGATE_METRICS_ADDR" envDefault:":8888"`
	UserAgent      string        `env:"DASHGATE_USER_AGENT" envDefault:"dashgate"`
	SessionSecret  string        `env:"DASHGATE_SESSION_SECRET"`
	SessionCookies []string      `env:"DASHGATE_SESSION_COOKIES" envSeparator:"," envDefault:"next-auth.session-token,__Secure-next-auth.session-token"`
	MemcachedAddr  string        `env:"DASHGATE_MEMCACHED_ADDR"`
	RateLimit      int           `env:"DASHGATE_RATE_LIMIT" envDefault:"50"`
	BodyLimit      int64         `env:"DASHGATE_BODY_LIMIT" envDefault:"1048576"`
	CookieMaxAge   time.Duration `env:"DASHGATE_COOKIE_MAX_AGE" envDefault:"12h"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.UpstreamURL = strings.TrimRight(strings.TrimSpace(c.UpstreamURL), "/")
	if c.UpstreamURL != "" {
		u, err := url.Parse(c.UpstreamURL)
		if err != nil {
			return errors.Wrap(err, "invalid DASHGATE_UPSTREAM_URL")
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Errorf("DASHGATE_UPSTREAM_URL must be an absolute http(s) URL, got %q", c.UpstreamURL)
		}
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = int(DefaultTimeout / time.Millisecond)
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = 1 << 20
	}
	if c.InsecureTLS && c.Production() {
		log.Println("DASHGATE_INSECURE_TLS ignored: relaxed TLS is never enabled in production")
		c.InsecureTLS = false
	}
	cookies := c.SessionCookies[:0]
	for _, name := range c.SessionCookies {
		if name = strings.TrimSpace(name); name != "" {
			cookies = append(cookies, name)
		}
	}
	c.SessionCookies = cookies
	return nil
}

// Production reports whether the deployment is production. Only an explicit
// development mode opts out.
func (c Config) Production() bool {
	switch c.Mode {
	case "development", "dev", "local", "test":
		return false
	default:
		return true
	}
}

// RelaxedTLS reports whether upstream certificate validation may be skipped.
func (c Config) RelaxedTLS() bool {
	return c.InsecureTLS && !c.Production()
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
