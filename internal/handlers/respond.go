package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/middleware"
	"github.com/motioncourse/web/internal/session"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// redirectIfLoggedOut sends the browser to the sign-in page when err says the
// session can no longer be renewed. It reports whether it responded.
func redirectIfLoggedOut(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrLoginRequired) {
		return false
	}
	logging.FromContext(r.Context()).Info("session expired, redirecting to sign in")
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
	return true
}

func sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		logging.FromContext(r.Context()).Error("session middleware not installed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}
