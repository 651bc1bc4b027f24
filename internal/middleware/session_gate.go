package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

// LoginPath is where the gate sends visitors without a usable session.
const LoginPath = "/login"

// ProfileFetcher resolves the identity behind the session credentials.
type ProfileFetcher interface {
	Profile(ctx context.Context, creds apiclient.Credentials) (models.User, error)
}

// RequireSession guards protected pages. Visitors without any credential are
// redirected without a network call; a session that already knows its user
// passes straight through; otherwise the profile is fetched once and stored.
func RequireSession(profiles ProfileFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := session.FromContext(ctx)
			if sess == nil || !sess.HasCredential() {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			if user, ok := sess.User(); ok {
				next.ServeHTTP(w, r.WithContext(logging.With(ctx, slog.String("user", user.Username))))
				return
			}

			sess.BeginAuthentication()
			user, err := profiles.Profile(ctx, sess)
			if err != nil || user.Username == "" {
				logger := logging.FromContext(ctx)
				switch {
				case err == nil, errors.Is(err, models.ErrEmptyProfile):
					logger.Info("profile empty, signing out")
				case errors.Is(err, apiclient.ErrLoginRequired):
					logger.Info("session expired", "error", err)
				default:
					logger.Warn("profile lookup failed", "error", err)
				}
				sess.ClearAll(ctx)
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			if err := sess.SetUser(ctx, user); err != nil {
				logging.FromContext(ctx).Error("store session user", "error", err)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(logging.With(ctx, slog.String("user", user.Username))))
		})
	}
}
