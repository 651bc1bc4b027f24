package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/motioncourse/web/internal/credentials"
	"github.com/motioncourse/web/internal/logging"
)

const (
	browserSessionName = "motioncourse_session"
	sessionIDKey       = "sid"
)

// ManagerOptions configure the browser-session cookie.
type ManagerOptions struct {
	HashKey  []byte
	BlockKey []byte
	Secure   bool
}

// Manager builds a Context for every request from the credential cookies and
// the identity kept in the Store.
type Manager struct {
	cookies *credentials.Cookies
	store   Store
	browser *sessions.CookieStore
}

// NewManager wires the credential cookies, the identity store and the
// browser-session cookie together.
func NewManager(cookies *credentials.Cookies, store Store, opts ManagerOptions) *Manager {
	if cookies == nil || store == nil {
		panic("session: cookies and store must not be nil")
	}

	browser := sessions.NewCookieStore(opts.HashKey, opts.BlockKey)
	// MaxAge 0 keeps the cookie for the lifetime of the browser session only.
	browser.MaxAge(0)
	browser.Options.Path = "/"
	browser.Options.HttpOnly = true
	browser.Options.Secure = opts.Secure
	browser.Options.SameSite = http.SameSiteLaxMode

	return &Manager{cookies: cookies, store: store, browser: browser}
}

// Open builds the session for r. Responses written through w receive any
// cookie changes the session makes.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) *Context {
	ctx := r.Context()
	sess := &Context{
		manager: m,
		w:       w,
		r:       r,
		creds:   m.cookies.Read(r),
	}

	browser, err := m.browser.Get(r, browserSessionName)
	if err != nil {
		logging.FromContext(ctx).Debug("discarding unreadable session cookie", "error", err)
	}
	if browser != nil {
		if id, ok := browser.Values[sessionIDKey].(string); ok {
			sess.id = id
		}
	}

	if sess.id == "" {
		return sess
	}

	user, err := m.store.Load(ctx, sess.id)
	switch {
	case err == nil:
		sess.user = user
		sess.hasUser = true
	case errors.Is(err, ErrNotFound):
	default:
		logging.FromContext(ctx).Warn("load session user", "error", err)
	}

	// A user without any credential left is a stale session.
	if sess.hasUser && sess.creds.Empty() {
		sess.ClearUser(ctx)
	}
	return sess
}

// Middleware attaches a Context to every request.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Open(w, r)
		ctx := WithContext(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) ensureID(w http.ResponseWriter, r *http.Request, current string) (string, error) {
	if current != "" {
		return current, nil
	}

	browser, err := m.browser.Get(r, browserSessionName)
	if browser == nil {
		return "", fmt.Errorf("open browser session: %w", err)
	}

	id := uuid.NewString()
	browser.Values[sessionIDKey] = id
	if err := browser.Save(r, w); err != nil {
		return "", fmt.Errorf("save browser session: %w", err)
	}
	return id, nil
}
