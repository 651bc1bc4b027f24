package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/motioncourse/web/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Auth      AuthGateway
	Profiles  middleware.ProfileFetcher
	Videos    VideoGateway
	Catalog   CourseCatalog
	Publisher VideoPublisher
	Limiter   RateLimiter
	Pages     *Pages
	Health    Pinger
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux. Every page
// except the sign-in form and the probes sits behind the session gate.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Sessions: deps.Health}
	auth := AuthHandler{Gateway: deps.Auth, Limiter: deps.Limiter, Pages: deps.Pages, Validate: validator.New()}
	pages := LessonHandler{Videos: deps.Videos, Catalog: deps.Catalog, Pages: deps.Pages}
	mentor := MentorHandler{Publisher: deps.Publisher, Pages: deps.Pages}
	me := MeHandler{}

	gate := middleware.RequireSession(deps.Profiles)
	protect := func(h http.HandlerFunc) http.Handler { return gate(h) }

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("GET /login", auth.LoginForm)
	mux.HandleFunc("POST /login", auth.Login)
	mux.HandleFunc("POST /logout", auth.Logout)

	mux.Handle("GET /api/me", protect(me.Handle))
	mux.Handle("GET /home", protect(pages.Home))
	mux.Handle("GET /lessons", protect(pages.List))
	mux.Handle("GET /lessons/{id}", protect(pages.Detail))
	mux.Handle("GET /mentor", protect(mentor.Page))
	mux.Handle("POST /mentor/videos", protect(mentor.Create))
	mux.Handle("POST /mentor/videos/{id}", protect(mentor.Update))
	mux.Handle("POST /mentor/videos/{id}/delete", protect(mentor.Delete))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, homePath, http.StatusSeeOther)
	})
}
