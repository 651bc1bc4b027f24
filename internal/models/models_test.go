package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProfileShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		username string
		email    *string
		course   *int
	}{
		{
			name:     "object",
			body:     `{"username":"alice","email":"a@example.com","course":5}`,
			username: "alice",
			email:    strPtr("a@example.com"),
			course:   intPtr(5),
		},
		{
			name:     "array uses first element",
			body:     `[{"username":"bob"},{"username":"carol"}]`,
			username: "bob",
		},
		{
			name:     "nested user",
			body:     `{"user":{"username":"dave","email":"d@example.com"},"course":2}`,
			username: "dave",
			email:    strPtr("d@example.com"),
			course:   intPtr(2),
		},
		{
			name:     "empty email becomes nil",
			body:     `{"username":"erin","email":""}`,
			username: "erin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := DecodeProfile([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.username, user.Username)
			assert.Equal(t, tt.email, user.Email)
			assert.Equal(t, tt.course, user.Course)
		})
	}
}

func TestDecodeProfileEmpty(t *testing.T) {
	for _, body := range []string{``, `null`, `[]`, `{}`, `{"user":{}}`} {
		_, err := DecodeProfile([]byte(body))
		assert.ErrorIs(t, err, ErrEmptyProfile, "body %q", body)
	}

	_, err := DecodeProfile([]byte(`{"username":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyProfile)
}

func TestCategoryRefAcceptsNumberOrObject(t *testing.T) {
	var videos []Video
	body := `[
		{"id":1,"course":5,"category_lesson":3,"video":"https://cdn/1.mp4","lesson_number":1},
		{"id":2,"course":5,"category_lesson":{"id":4,"ct_lesson_name":"Basics"},"video":"https://cdn/2.mp4","lesson_number":2}
	]`
	require.NoError(t, json.Unmarshal([]byte(body), &videos))
	require.Len(t, videos, 2)
	assert.Equal(t, CategoryRef{ID: 3}, videos[0].CategoryLesson)
	assert.Equal(t, CategoryRef{ID: 4, Name: "Basics"}, videos[1].CategoryLesson)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
