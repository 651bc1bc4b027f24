package handlers

import (
	"net/http"

	"github.com/motioncourse/web/internal/models"
)

// MeHandler exposes the signed-in identity for the header widget.
type MeHandler struct{}

type meResponse struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Course   *int    `json:"course"`
	State    string  `json:"state"`
}

// Handle implements GET /api/me.
func (MeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	user, _ := sess.User()
	respondJSON(r.Context(), w, http.StatusOK, newMeResponse(user, sess.State().String()))
}

func newMeResponse(user models.User, state string) meResponse {
	return meResponse{
		Username: user.Username,
		Email:    user.Email,
		Course:   user.Course,
		State:    state,
	}
}
