package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyProfile indicates the profile endpoint answered without a usable identity.
var ErrEmptyProfile = errors.New("empty profile")

// User is the display identity of the signed-in student or mentor.
type User struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Course   *int    `json:"course,omitempty"`
}

// IsZero reports whether no identity has been recorded.
func (u User) IsZero() bool {
	return u.Username == "" && u.Email == nil && u.Course == nil
}

// Credentials groups the bearer credentials held by the browser.
type Credentials struct {
	Access  string
	Refresh string
}

// Empty reports whether neither credential is present.
func (c Credentials) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}

// CategoryRef is the lesson category a video belongs to. The API sends it either
// as a bare id or as an expanded object.
type CategoryRef struct {
	ID   int    `json:"id"`
	Name string `json:"ct_lesson_name,omitempty"`
}

// UnmarshalJSON accepts both `3` and `{"id":3,"ct_lesson_name":"..."}`.
func (c *CategoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = CategoryRef{}
		return nil
	}
	if len(data) > 0 && data[0] != '{' {
		var id int
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decode category id: %w", err)
		}
		*c = CategoryRef{ID: id}
		return nil
	}

	type plain CategoryRef
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	*c = CategoryRef(out)
	return nil
}

// Video is a lesson video record as served by the course API.
type Video struct {
	ID             int         `json:"id"`
	Course         int         `json:"course"`
	CategoryLesson CategoryRef `json:"category_lesson"`
	Video          string      `json:"video"`
	LessonNumber   int         `json:"lesson_number"`
	Description    string      `json:"description,omitempty"`
}

// Course describes the course a video belongs to.
type Course struct {
	ID        int    `json:"id"`
	Name      string `json:"course_name"`
	CreatedAt string `json:"created_at"`
}

// VideoDraft carries the fields of a mentor upload.
type VideoDraft struct {
	Course         int    `validate:"required,gt=0"`
	CategoryLesson int    `validate:"required,gt=0"`
	LessonNumber   int    `validate:"gte=0"`
	Description    string `validate:"max=4000"`

	// FileName and Open describe the uploaded file; Open may be called more than once.
	FileName string `validate:"required_without=SourceURL"`
	Open     func() (io.ReadCloser, error)

	// SourceURL is set instead of the file when the asset was staged in object storage.
	SourceURL string
}

// VideoPatch is a partial update of a video record. Nil fields are left untouched.
type VideoPatch struct {
	ID             int     `json:"-" validate:"required,gt=0"`
	Course         *int    `json:"course,omitempty" validate:"omitempty,gt=0"`
	CategoryLesson *int    `json:"category_lesson,omitempty" validate:"omitempty,gt=0"`
	LessonNumber   *int    `json:"lesson_number,omitempty" validate:"omitempty,gte=0"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=4000"`
}

type profileIdentity struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Course   *int    `json:"course"`
}

type profilePayload struct {
	profileIdentity
	User *profileIdentity `json:"user"`
}

// DecodeProfile turns a /student-profile/ body into a User. The body may be a
// single object or an array whose first element is used; identity fields may
// sit at the top level or under "user".
func DecodeProfile(body []byte) (User, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return User{}, ErrEmptyProfile
	}

	var payload profilePayload
	if body[0] == '[' {
		var list []profilePayload
		if err := json.Unmarshal(body, &list); err != nil {
			return User{}, fmt.Errorf("decode profile list: %w", err)
		}
		if len(list) == 0 {
			return User{}, ErrEmptyProfile
		}
		payload = list[0]
	} else if err := json.Unmarshal(body, &payload); err != nil {
		return User{}, fmt.Errorf("decode profile: %w", err)
	}

	nested := profileIdentity{}
	if payload.User != nil {
		nested = *payload.User
	}

	user := User{
		Username: firstNonEmpty(payload.Username, nested.Username),
		Email:    firstNonEmptyPtr(payload.Email, nested.Email),
		Course:   payload.Course,
	}
	if user.Course == nil {
		user.Course = nested.Course
	}
	if user.Username == "" {
		return User{}, ErrEmptyProfile
	}
	return user, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyPtr(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
