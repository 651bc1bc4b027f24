package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/videos"
)

const (
	mentorPath         = "/mentor"
	maxUploadMemory    = 32 << 20
	maxUploadBodyBytes = 2 << 30
)

// MentorHandler serves the mentor upload and management pages.
type MentorHandler struct {
	Publisher VideoPublisher
	Pages     *Pages
}

type mentorView struct {
	Videos     []models.Video
	LoadFailed bool
	Editing    *models.Video
	Error      string
}

// Page handles GET /mentor. ?edit={id} opens the edit form for that video.
func (h MentorHandler) Page(w http.ResponseWriter, r *http.Request) {
	view, ok := h.load(w, r)
	if !ok {
		return
	}
	status := http.StatusOK
	if view.LoadFailed {
		status = http.StatusBadGateway
	}
	h.Pages.Render(w, r, status, "mentor", view)
}

// Create handles POST /mentor/videos.
func (h MentorHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		logging.FromContext(ctx).Warn("invalid upload form", "error", err)
		h.fail(w, r, http.StatusBadRequest, "The upload could not be read.")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	draft, err := draftFromForm(r)
	if err != nil {
		h.fail(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if _, err := h.Publisher.Create(ctx, sess, draft); err != nil {
		h.mutationFailed(w, r, "created", err)
		return
	}
	http.Redirect(w, r, mentorPath, http.StatusSeeOther)
}

// Update handles POST /mentor/videos/{id}.
func (h MentorHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.fail(w, r, http.StatusNotFound, "Unknown video.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	patch, err := patchFromForm(id, r)
	if err != nil {
		h.fail(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if _, err := h.Publisher.Update(ctx, sess, patch); err != nil {
		h.mutationFailed(w, r, "updated", err)
		return
	}
	http.Redirect(w, r, mentorPath, http.StatusSeeOther)
}

// Delete handles POST /mentor/videos/{id}/delete.
func (h MentorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.fail(w, r, http.StatusNotFound, "Unknown video.")
		return
	}

	if err := h.Publisher.Delete(ctx, sess, id); err != nil {
		h.mutationFailed(w, r, "deleted", err)
		return
	}
	http.Redirect(w, r, mentorPath, http.StatusSeeOther)
}

func (h MentorHandler) load(w http.ResponseWriter, r *http.Request) (mentorView, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	sess, ok := sessionFrom(w, r)
	if !ok {
		return mentorView{}, false
	}

	var view mentorView
	list, err := h.Publisher.List(ctx, sess)
	if err != nil {
		if redirectIfLoggedOut(w, r, err) {
			return mentorView{}, false
		}
		logger.Warn("load mentor videos", "error", err)
		view.LoadFailed = true
	}
	view.Videos = list

	if raw := r.URL.Query().Get("edit"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			view.Error = "Unknown video."
			return view, true
		}
		video, err := h.Publisher.Get(ctx, sess, id)
		if err != nil {
			if redirectIfLoggedOut(w, r, err) {
				return mentorView{}, false
			}
			logger.Warn("load mentor video", "videoId", id, "error", err)
			view.Error = "The video could not be loaded."
			return view, true
		}
		view.Editing = &video
	}
	return view, true
}

func (h MentorHandler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	view, ok := h.load(w, r)
	if !ok {
		return
	}
	view.Error = message
	h.Pages.Render(w, r, status, "mentor", view)
}

func (h MentorHandler) mutationFailed(w http.ResponseWriter, r *http.Request, outcome string, err error) {
	if redirectIfLoggedOut(w, r, err) {
		return
	}
	logging.FromContext(r.Context()).Warn("mentor video not "+outcome, "error", err)

	var verr *videos.ValidationError
	switch {
	case errors.As(err, &verr):
		labels := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			labels = append(labels, fieldLabel(f))
		}
		h.fail(w, r, http.StatusUnprocessableEntity, "Please check: "+strings.Join(labels, ", ")+".")
	case errors.Is(err, videos.ErrMissingFile):
		h.fail(w, r, http.StatusUnprocessableEntity, "Choose a video file to upload.")
	default:
		h.fail(w, r, http.StatusBadGateway, fmt.Sprintf("The video could not be %s. Please try again later.", outcome))
	}
}

// formError is shown to the mentor as is.
type formError string

func (e formError) Error() string { return string(e) }

func draftFromForm(r *http.Request) (models.VideoDraft, error) {
	var draft models.VideoDraft
	var err error

	if draft.Course, err = formInt(r, "course", true); err != nil {
		return draft, err
	}
	if draft.CategoryLesson, err = formInt(r, "category_lesson", true); err != nil {
		return draft, err
	}
	if draft.LessonNumber, err = formInt(r, "lesson_number", false); err != nil {
		return draft, err
	}
	draft.Description = strings.TrimSpace(r.FormValue("description"))

	file, header, err := r.FormFile("video")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return draft, nil
		}
		return draft, formError("The video file could not be read.")
	}
	draft.FileName = header.Filename
	draft.Open = reopener(file, header)
	return draft, nil
}

// reopener lets the upload be streamed again when the request is retried.
func reopener(file multipart.File, header *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(file, 0, header.Size)), nil
	}
}

func patchFromForm(id int, r *http.Request) (models.VideoPatch, error) {
	patch := models.VideoPatch{ID: id}
	for field, dst := range map[string]**int{
		"course":          &patch.Course,
		"category_lesson": &patch.CategoryLesson,
		"lesson_number":   &patch.LessonNumber,
	} {
		if strings.TrimSpace(r.PostFormValue(field)) == "" {
			continue
		}
		v, err := formInt(r, field, false)
		if err != nil {
			return patch, err
		}
		*dst = &v
	}
	if _, present := r.PostForm["description"]; present {
		desc := strings.TrimSpace(r.PostFormValue("description"))
		patch.Description = &desc
	}
	return patch, nil
}

func formInt(r *http.Request, field string, required bool) (int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		if required {
			return 0, formError(fieldLabel(field) + " is required.")
		}
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, formError(fieldLabel(field) + " must be a number.")
	}
	return v, nil
}

func fieldLabel(field string) string {
	switch field {
	case "course", "Course":
		return "Course"
	case "category_lesson", "CategoryLesson":
		return "Topic"
	case "lesson_number", "LessonNumber":
		return "Lesson number"
	case "FileName":
		return "Video file"
	default:
		return field
	}
}
