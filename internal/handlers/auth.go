package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/motioncourse/web/internal/logging"
)

const homePath = "/home"

// AuthHandler implements the sign-in and sign-out pages.
type AuthHandler struct {
	Gateway  AuthGateway
	Limiter  RateLimiter
	Pages    *Pages
	Validate *validator.Validate
}

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type loginView struct {
	Username string
}

// LoginForm handles GET /login.
func (h AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.Pages.Render(w, r, http.StatusOK, "login", loginView{})
}

// Login handles POST /login. Any failure re-renders the form without a
// message; only a complete sign-in redirects.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	view := loginView{Username: form.Username}

	if !allowRequest(h.Limiter, r, "login") {
		logger.Warn("login rate limited", "ip", clientIP(r))
		h.Pages.Render(w, r, http.StatusTooManyRequests, "login", view)
		return
	}

	if err := h.validator().Struct(form); err != nil {
		logger.Debug("login form incomplete", "error", err)
		h.Pages.Render(w, r, http.StatusOK, "login", view)
		return
	}

	sess.BeginAuthentication()
	result, err := h.Gateway.Login(ctx, sess, form.Username, form.Password)
	if err != nil {
		logger.Info("login rejected", "username", form.Username, "error", err)
		h.Pages.Render(w, r, http.StatusOK, "login", view)
		return
	}

	if result.Tokens.Access != "" && result.Tokens.Refresh != "" {
		sess.SetTokens(result.Tokens)
	} else {
		logger.Warn("login response without a full credential pair", "username", form.Username)
	}

	if result.User.Username != "" {
		if err := sess.SetUser(ctx, result.User); err != nil {
			logger.Error("store session user", "error", err)
		}
	}

	logger.Info("user signed in", "username", form.Username)
	http.Redirect(w, r, homePath, http.StatusSeeOther)
}

// Logout handles POST /logout. Local state is cleared whatever the API says.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	if sess.HasCredential() {
		if err := h.Gateway.Logout(ctx, sess); err != nil {
			logging.FromContext(ctx).Info("logout request failed", "error", err)
		}
	}
	sess.ClearAll(ctx)

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h AuthHandler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}
