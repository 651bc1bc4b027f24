package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrLoginRequired means the session could not be re-authenticated; the
// credentials have been cleared and the user must sign in again.
var ErrLoginRequired = errors.New("login required")

// APIError reports a non-2xx answer from the course API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the course API.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

func statusError(req Request, resp Response) error {
	body := string(resp.Body)
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &APIError{Method: req.Method, Path: req.Path, Status: resp.Status, Body: body}
}
