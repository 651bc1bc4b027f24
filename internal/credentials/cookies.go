package credentials

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/motioncourse/web/internal/models"
)

// Cookie names of the two credentials.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Options control how credential cookies are written.
type Options struct {
	Prefix     string
	Secure     bool
	SameSite   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Path       string
	Now        func() time.Time
}

// Cookies reads and writes the access/refresh credential pair as browser cookies.
type Cookies struct {
	opts   Options
	parser *jwt.Parser
}

// NewCookies applies defaults (1h access, 7 day refresh, path "/") to opts.
func NewCookies(opts Options) *Cookies {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cookies{
		opts:   opts,
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
}

// Read returns the credentials carried by the request. An access token that is
// a JWT with an expiry in the past is reported as absent.
func (c *Cookies) Read(r *http.Request) models.Credentials {
	creds := models.Credentials{
		Access:  c.value(r, AccessCookie),
		Refresh: c.value(r, RefreshCookie),
	}
	if creds.Access != "" && c.expired(creds.Access) {
		creds.Access = ""
	}
	return creds
}

// Store writes both credentials.
func (c *Cookies) Store(w http.ResponseWriter, creds models.Credentials) {
	c.set(w, AccessCookie, creds.Access, c.opts.AccessTTL)
	c.set(w, RefreshCookie, creds.Refresh, c.opts.RefreshTTL)
}

// StoreAccess replaces only the access credential.
func (c *Cookies) StoreAccess(w http.ResponseWriter, access string) {
	c.set(w, AccessCookie, access, c.opts.AccessTTL)
}

// ClearAccess removes the access credential.
func (c *Cookies) ClearAccess(w http.ResponseWriter) {
	c.remove(w, AccessCookie)
}

// Clear removes both credentials.
func (c *Cookies) Clear(w http.ResponseWriter) {
	c.remove(w, AccessCookie)
	c.remove(w, RefreshCookie)
}

func (c *Cookies) name(base string) string {
	if c.opts.Prefix == "" {
		return base
	}
	return fmt.Sprintf("%s_%s", c.opts.Prefix, base)
}

func (c *Cookies) value(r *http.Request, base string) string {
	cookie, err := r.Cookie(c.name(base))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (c *Cookies) set(w http.ResponseWriter, base, value string, ttl time.Duration) {
	if value == "" {
		c.remove(w, base)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(base),
		Value:    value,
		Path:     c.opts.Path,
		Expires:  c.opts.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.sameSite(),
	})
}

func (c *Cookies) remove(w http.ResponseWriter, base string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(base),
		Value:    "",
		Path:     c.opts.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.sameSite(),
	})
}

func (c *Cookies) sameSite() http.SameSite {
	switch strings.ToLower(c.opts.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// expired only judges tokens that parse as JWTs; opaque tokens are left for the
// API to reject.
func (c *Cookies) expired(token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	parsed, _, err := c.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.opts.Now().Before(exp.Time)
}
