package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
)

// AssetStorage persists uploaded files and returns their public location.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Gateway is the part of the course API client used for mentor uploads.
type Gateway interface {
	MentorVideos(ctx context.Context, creds apiclient.Credentials) ([]models.Video, error)
	MentorVideo(ctx context.Context, creds apiclient.Credentials, id int) (models.Video, error)
	CreateVideo(ctx context.Context, creds apiclient.Credentials, draft models.VideoDraft) (models.Video, error)
	UpdateVideo(ctx context.Context, creds apiclient.Credentials, patch models.VideoPatch) (models.Video, error)
	DeleteVideo(ctx context.Context, creds apiclient.Credentials, id int) error
}

// Publisher validates mentor uploads, optionally stages the file in object
// storage and forwards the record to the course API.
type Publisher struct {
	gateway  Gateway
	storage  AssetStorage
	validate *validator.Validate
	newID    func() string
}

// NewPublisher returns a Publisher. A nil storage streams files straight to the API.
func NewPublisher(gateway Gateway, storage AssetStorage) *Publisher {
	return &Publisher{
		gateway:  gateway,
		storage:  storage,
		validate: validator.New(),
		newID:    func() string { return uuid.NewString() },
	}
}

// Staging reports whether uploads go through object storage.
func (p *Publisher) Staging() bool {
	return p.storage != nil
}

// List returns the videos uploaded by the current mentor.
func (p *Publisher) List(ctx context.Context, creds apiclient.Credentials) ([]models.Video, error) {
	return p.gateway.MentorVideos(ctx, creds)
}

// Get returns one uploaded video.
func (p *Publisher) Get(ctx context.Context, creds apiclient.Credentials, id int) (models.Video, error) {
	return p.gateway.MentorVideo(ctx, creds, id)
}

// Create validates draft and creates the video record.
func (p *Publisher) Create(ctx context.Context, creds apiclient.Credentials, draft models.VideoDraft) (models.Video, error) {
	if draft.SourceURL == "" && draft.Open == nil {
		return models.Video{}, ErrMissingFile
	}
	if err := p.check(draft); err != nil {
		return models.Video{}, err
	}

	if p.storage != nil && draft.SourceURL == "" {
		location, err := p.stage(ctx, draft)
		if err != nil {
			return models.Video{}, err
		}
		draft.SourceURL = location
		draft.Open = nil
	}

	video, err := p.gateway.CreateVideo(ctx, creds, draft)
	if err != nil {
		return models.Video{}, fmt.Errorf("create video: %w", err)
	}
	logging.FromContext(ctx).Info("video published", slog.Int("videoId", video.ID), slog.Int("course", video.Course), slog.Bool("staged", draft.SourceURL != ""))
	return video, nil
}

// Update validates patch and applies it.
func (p *Publisher) Update(ctx context.Context, creds apiclient.Credentials, patch models.VideoPatch) (models.Video, error) {
	if err := p.check(patch); err != nil {
		return models.Video{}, err
	}
	video, err := p.gateway.UpdateVideo(ctx, creds, patch)
	if err != nil {
		return models.Video{}, fmt.Errorf("update video %d: %w", patch.ID, err)
	}
	return video, nil
}

// Delete removes a video record.
func (p *Publisher) Delete(ctx context.Context, creds apiclient.Credentials, id int) error {
	if id <= 0 {
		return &ValidationError{Fields: []string{"ID"}}
	}
	if err := p.gateway.DeleteVideo(ctx, creds, id); err != nil {
		return fmt.Errorf("delete video %d: %w", id, err)
	}
	logging.FromContext(ctx).Info("video deleted", slog.Int("videoId", id))
	return nil
}

func (p *Publisher) check(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

func (p *Publisher) stage(ctx context.Context, draft models.VideoDraft) (string, error) {
	if p.storage == nil {
		return "", ErrStorageUnavailable
	}
	file, err := draft.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	key := path.Join("uploads", fmt.Sprint(draft.Course), p.newID()+"-"+cleanName(draft.FileName))
	location, err := p.storage.Save(ctx, key, file)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return location, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func cleanName(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "video"
	}
	return base
}
