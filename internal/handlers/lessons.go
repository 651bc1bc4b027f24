package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/lessons"
	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/models"
)

// LessonHandler serves the student-facing catalog pages.
type LessonHandler struct {
	Videos  VideoGateway
	Catalog CourseCatalog
	Pages   *Pages
}

type homeView struct {
	Course *int
}

type lessonsView struct {
	Enrolled   bool
	LoadFailed bool
	Videos     []models.Video
}

type lessonView struct {
	Video  models.Video
	Course *models.Course
	Next   []models.Video
}

// Home handles GET /home.
func (h LessonHandler) Home(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	user, _ := sess.User()
	h.Pages.Render(w, r, http.StatusOK, "home", homeView{Course: user.Course})
}

// List handles GET /lessons: the videos of the signed-in user's course.
func (h LessonHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	user, _ := sess.User()
	if user.Course == nil {
		h.Pages.Render(w, r, http.StatusOK, "lessons", lessonsView{})
		return
	}

	videos, err := h.Catalog.CourseVideos(ctx, sess, *user.Course)
	if err != nil {
		if redirectIfLoggedOut(w, r, err) {
			return
		}
		logging.FromContext(ctx).Warn("load course videos", "course", *user.Course, "error", err)
		h.Pages.Render(w, r, http.StatusBadGateway, "lessons", lessonsView{Enrolled: true, LoadFailed: true})
		return
	}

	h.Pages.Render(w, r, http.StatusOK, "lessons", lessonsView{
		Enrolled: true,
		Videos:   lessons.ForCourse(videos, *user.Course),
	})
}

// Detail handles GET /lessons/{id}.
func (h LessonHandler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.Pages.Render(w, r, http.StatusNotFound, "lesson_not_found", nil)
		return
	}

	video, err := h.Videos.Video(ctx, sess, id)
	switch {
	case err == nil:
	case redirectIfLoggedOut(w, r, err):
		return
	case apiclient.IsNotFound(err):
		h.Pages.Render(w, r, http.StatusNotFound, "lesson_not_found", nil)
		return
	default:
		logger.Warn("load video", "videoId", id, "error", err)
		h.Pages.Render(w, r, http.StatusBadGateway, "lesson_error", nil)
		return
	}

	user, _ := sess.User()
	if denial, allowed := lessons.Check(video, user); !allowed {
		logger.Info("lesson access denied", "videoId", video.ID, "videoCourse", denial.VideoCourse, "userCourse", denial.UserCourseLabel())
		h.Pages.Render(w, r, http.StatusForbidden, "lesson_denied", denial)
		return
	}

	view, err := h.loadDetail(ctx, sess, video)
	if err != nil {
		if redirectIfLoggedOut(w, r, err) {
			return
		}
		logger.Warn("load lesson detail", "videoId", id, "error", err)
		h.Pages.Render(w, r, http.StatusBadGateway, "lesson_error", nil)
		return
	}

	h.Pages.Render(w, r, http.StatusOK, "lesson", view)
}

// loadDetail fetches the course and its video list concurrently. Either lookup
// may fail without hiding the video; only a lost session aborts the page.
func (h LessonHandler) loadDetail(ctx context.Context, creds apiclient.Credentials, video models.Video) (lessonView, error) {
	logger := logging.FromContext(ctx)
	view := lessonView{Video: video}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		course, err := h.Catalog.Course(gctx, creds, video.Course)
		if err != nil {
			if errors.Is(err, apiclient.ErrLoginRequired) {
				return err
			}
			logger.Warn("load course", "course", video.Course, "error", err)
			return nil
		}
		view.Course = &course
		return nil
	})
	g.Go(func() error {
		videos, err := h.Catalog.CourseVideos(gctx, creds, video.Course)
		if err != nil {
			if errors.Is(err, apiclient.ErrLoginRequired) {
				return err
			}
			logger.Warn("load next lessons", "course", video.Course, "error", err)
			return nil
		}
		view.Next = lessons.NextLessons(videos, video)
		return nil
	})

	if err := g.Wait(); err != nil {
		return lessonView{}, err
	}
	return view, nil
}
