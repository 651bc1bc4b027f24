package videos

import (
	"errors"
	"strings"
)

var (
	// ErrStorageUnavailable indicates asset staging was requested without an object store.
	ErrStorageUnavailable = errors.New("video asset storage unavailable")
	// ErrMissingFile indicates a draft carries neither a file nor a staged asset.
	ErrMissingFile = errors.New("video file is required")
)

// ValidationError reports the draft or patch fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid video fields: " + strings.Join(e.Fields, ", ")
}
