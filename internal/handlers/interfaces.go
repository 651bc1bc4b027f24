package handlers

import (
	"context"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/models"
)

// AuthGateway captures the course API calls used by the sign-in pages.
type AuthGateway interface {
	Login(ctx context.Context, creds apiclient.Credentials, username, password string) (apiclient.LoginResult, error)
	Logout(ctx context.Context, creds apiclient.Credentials) error
}

// VideoGateway loads a single lesson video.
type VideoGateway interface {
	Video(ctx context.Context, creds apiclient.Credentials, id int) (models.Video, error)
}

// CourseCatalog serves course details and course video lists.
type CourseCatalog interface {
	CourseVideos(ctx context.Context, creds apiclient.Credentials, courseID int) ([]models.Video, error)
	Course(ctx context.Context, creds apiclient.Credentials, id int) (models.Course, error)
}

// VideoPublisher manages the videos uploaded by a mentor.
type VideoPublisher interface {
	List(ctx context.Context, creds apiclient.Credentials) ([]models.Video, error)
	Get(ctx context.Context, creds apiclient.Credentials, id int) (models.Video, error)
	Create(ctx context.Context, creds apiclient.Credentials, draft models.VideoDraft) (models.Video, error)
	Update(ctx context.Context, creds apiclient.Credentials, patch models.VideoPatch) (models.Video, error)
	Delete(ctx context.Context, creds apiclient.Credentials, id int) error
}
