package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
)

// State is the position of a browser session in its lifecycle.
type State int

const (
	// Anonymous sessions carry neither credentials nor a user.
	Anonymous State = iota
	// Authenticating sessions hold credentials (or a login is in flight) but no user yet.
	Authenticating
	// Authenticated sessions have a known user.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Context is the explicit session object handed to handlers and API calls for
// one request. It owns the credential cookies and the stored display identity.
type Context struct {
	mu sync.Mutex

	manager *Manager
	w       http.ResponseWriter
	r       *http.Request

	id             string
	creds          models.Credentials
	user           models.User
	hasUser        bool
	authenticating bool
}

// State reports the lifecycle position of the session.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Context) stateLocked() State {
	switch {
	case c.hasUser:
		return Authenticated
	case c.authenticating || !c.creds.Empty():
		return Authenticating
	default:
		return Anonymous
	}
}

// User returns the stored identity and whether one is present.
func (c *Context) User() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.hasUser
}

// HasCredential reports whether either credential is present.
func (c *Context) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.creds.Empty()
}

// Access returns the current access credential.
func (c *Context) Access() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Access
}

// Refresh returns the current refresh credential.
func (c *Context) Refresh() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Refresh
}

// BeginAuthentication marks a login attempt as in flight.
func (c *Context) BeginAuthentication() {
	c.mu.Lock()
	c.authenticating = true
	c.mu.Unlock()
}

// SetUser replaces the stored identity wholesale.
func (c *Context) SetUser(ctx context.Context, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.manager.ensureID(c.w, c.r, c.id)
	if err != nil {
		return err
	}
	c.id = id

	if err := c.manager.store.Save(ctx, id, user); err != nil {
		return err
	}
	c.user = user
	c.hasUser = true
	c.authenticating = false
	return nil
}

// ClearUser resets the stored identity to empty.
func (c *Context) ClearUser(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearUserLocked(ctx)
}

func (c *Context) clearUserLocked(ctx context.Context) {
	c.user = models.User{}
	c.hasUser = false
	c.authenticating = false
	if c.id == "" {
		return
	}
	if err := c.manager.store.Delete(ctx, c.id); err != nil {
		logging.FromContext(ctx).Warn("clear session user", "error", err)
	}
}

// SetTokens stores a freshly issued credential pair.
func (c *Context) SetTokens(creds models.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.manager.cookies.Store(c.w, creds)
}

// SetAccess replaces the access credential after a refresh.
func (c *Context) SetAccess(_ context.Context, access string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds.Access = access
	c.manager.cookies.StoreAccess(c.w, access)
}

// ClearAccess drops the access credential together with the stored user.
func (c *Context) ClearAccess(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds.Access = ""
	c.manager.cookies.ClearAccess(c.w)
	c.clearUserLocked(ctx)
}

// ClearAll drops both credentials together with the stored user.
func (c *Context) ClearAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = models.Credentials{}
	c.manager.cookies.Clear(c.w)
	c.clearUserLocked(ctx)
}

type ctxKey struct{}

// WithContext stores the session on ctx.
func WithContext(ctx context.Context, sess *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Context {
	sess, _ := ctx.Value(ctxKey{}).(*Context)
	return sess
}
