package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/credentials"
	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

type authGatewayStub struct {
	result      apiclient.LoginResult
	err         error
	logoutErr   error
	loginCalls  int
	logoutCalls int
}

func (a *authGatewayStub) Login(_ context.Context, _ apiclient.Credentials, _, _ string) (apiclient.LoginResult, error) {
	a.loginCalls++
	return a.result, a.err
}

func (a *authGatewayStub) Logout(context.Context, apiclient.Credentials) error {
	a.logoutCalls++
	return a.logoutErr
}

type profileStub struct {
	user models.User
	err  error
}

func (p *profileStub) Profile(context.Context, apiclient.Credentials) (models.User, error) {
	return p.user, p.err
}

type videoGatewayStub struct {
	videos map[int]models.Video
	err    error
}

func (v *videoGatewayStub) Video(_ context.Context, _ apiclient.Credentials, id int) (models.Video, error) {
	if v.err != nil {
		return models.Video{}, v.err
	}
	video, ok := v.videos[id]
	if !ok {
		return models.Video{}, &apiclient.APIError{Method: http.MethodGet, Path: "/videos/", Status: http.StatusNotFound}
	}
	return video, nil
}

type catalogStub struct {
	videos    []models.Video
	course    models.Course
	err       error
	courseErr error
}

func (c *catalogStub) CourseVideos(context.Context, apiclient.Credentials, int) ([]models.Video, error) {
	return c.videos, c.err
}

func (c *catalogStub) Course(context.Context, apiclient.Credentials, int) (models.Course, error) {
	return c.course, c.courseErr
}

type publisherStub struct {
	videos  []models.Video
	created []models.VideoDraft
	body    string
	patched []models.VideoPatch
	deleted []int
	err     error
}

func (p *publisherStub) List(context.Context, apiclient.Credentials) ([]models.Video, error) {
	return p.videos, nil
}

func (p *publisherStub) Get(_ context.Context, _ apiclient.Credentials, id int) (models.Video, error) {
	for _, v := range p.videos {
		if v.ID == id {
			return v, nil
		}
	}
	return models.Video{}, &apiclient.APIError{Status: http.StatusNotFound}
}

func (p *publisherStub) Create(_ context.Context, _ apiclient.Credentials, draft models.VideoDraft) (models.Video, error) {
	if p.err != nil {
		return models.Video{}, p.err
	}
	p.created = append(p.created, draft)
	if draft.Open != nil {
		rc, err := draft.Open()
		if err != nil {
			return models.Video{}, err
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		p.body = string(data)
	}
	return models.Video{ID: 99}, nil
}

func (p *publisherStub) Update(_ context.Context, _ apiclient.Credentials, patch models.VideoPatch) (models.Video, error) {
	if p.err != nil {
		return models.Video{}, p.err
	}
	p.patched = append(p.patched, patch)
	return models.Video{ID: patch.ID}, nil
}

func (p *publisherStub) Delete(_ context.Context, _ apiclient.Credentials, id int) error {
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, id)
	return nil
}

type limiterStub struct{ allow bool }

func (l limiterStub) Allow(string) bool { return l.allow }

type harness struct {
	auth      *authGatewayStub
	profiles  *profileStub
	videos    *videoGatewayStub
	catalog   *catalogStub
	publisher *publisherStub
	limiter   RateLimiter
	store     *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	course := 5
	return &harness{
		auth:      &authGatewayStub{},
		profiles:  &profileStub{user: models.User{Username: "alice", Course: &course}},
		videos:    &videoGatewayStub{videos: map[int]models.Video{}},
		catalog:   &catalogStub{},
		publisher: &publisherStub{},
		store:     session.NewMemoryStore(time.Hour),
	}
}

func (h *harness) handler(t *testing.T) http.Handler {
	t.Helper()
	pages, err := NewPages()
	require.NoError(t, err)

	jar := credentials.NewCookies(credentials.Options{})
	hashKey, blockKey, err := session.DeriveKeys("handler-tests")
	require.NoError(t, err)
	manager := session.NewManager(jar, h.store, session.ManagerOptions{HashKey: hashKey, BlockKey: blockKey})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Auth:      h.auth,
		Profiles:  h.profiles,
		Videos:    h.videos,
		Catalog:   h.catalog,
		Publisher: h.publisher,
		Limiter:   h.limiter,
		Pages:     pages,
	})
	return manager.Middleware(mux)
}

func signedIn(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: credentials.AccessCookie, Value: "access"})
	req.AddCookie(&http.Cookie{Name: credentials.RefreshCookie, Value: "refresh"})
	return req
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLoginRequiresBothFields(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	for _, form := range []url.Values{
		{"username": {""}, "password": {"secret"}},
		{"username": {"  "}, "password": {"secret"}},
		{"username": {"alice"}, "password": {""}},
	} {
		rec := serve(t, srv, postForm("/login", form))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `action="/login"`)
	}
	assert.Zero(t, h.auth.loginCalls, "no API call for an incomplete form")
}

func TestLoginStoresCredentialsAndUser(t *testing.T) {
	h := newHarness(t)
	email := "alice@example.com"
	h.auth.result = apiclient.LoginResult{
		User:   models.User{Username: "alice", Email: &email},
		Tokens: models.Credentials{Access: "new-access", Refresh: "new-refresh"},
	}
	srv := h.handler(t)

	rec := serve(t, srv, postForm("/login", url.Values{"username": {"alice"}, "password": {"secret"}}))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
	cookies := responseCookies(rec)
	require.Contains(t, cookies, credentials.AccessCookie)
	require.Contains(t, cookies, credentials.RefreshCookie)
	assert.Equal(t, "new-access", cookies[credentials.AccessCookie].Value)
	assert.Equal(t, 3600, cookies[credentials.AccessCookie].MaxAge)
	assert.Equal(t, 604800, cookies[credentials.RefreshCookie].MaxAge)
	assert.Equal(t, 1, h.store.Len())
}

func TestLoginWithoutFullPairStoresNoCookies(t *testing.T) {
	h := newHarness(t)
	h.auth.result = apiclient.LoginResult{
		User:   models.User{Username: "alice"},
		Tokens: models.Credentials{Access: "only-access"},
	}
	srv := h.handler(t)

	rec := serve(t, srv, postForm("/login", url.Values{"username": {"alice"}, "password": {"secret"}}))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := responseCookies(rec)
	assert.NotContains(t, cookies, credentials.AccessCookie)
	assert.NotContains(t, cookies, credentials.RefreshCookie)
}

func TestLoginFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.auth.err = &apiclient.APIError{Method: http.MethodPost, Path: apiclient.LoginPath, Status: http.StatusUnauthorized, Body: `{"detail":"bad credentials"}`}
	srv := h.handler(t)

	rec := serve(t, srv, postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.auth.loginCalls)
	assert.NotContains(t, rec.Body.String(), "bad credentials")
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	h.limiter = limiterStub{allow: false}
	srv := h.handler(t)

	rec := serve(t, srv, postForm("/login", url.Values{"username": {"alice"}, "password": {"secret"}}))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, h.auth.loginCalls)
}

func TestLogoutClearsStateEvenWhenAPIFails(t *testing.T) {
	h := newHarness(t)
	h.auth.logoutErr = errors.New("upstream down")
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodPost, "/logout", nil)))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, 1, h.auth.logoutCalls)
	cookies := responseCookies(rec)
	require.Contains(t, cookies, credentials.AccessCookie)
	require.Contains(t, cookies, credentials.RefreshCookie)
	assert.Less(t, cookies[credentials.AccessCookie].MaxAge, 0)
	assert.Less(t, cookies[credentials.RefreshCookie].MaxAge, 0)
}

func TestProtectedPagesRedirectAnonymous(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	for _, path := range []string{"/home", "/lessons", "/lessons/1", "/mentor", "/api/me"} {
		rec := serve(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func category(id int, name string) models.CategoryRef {
	return models.CategoryRef{ID: id, Name: name}
}

func TestLessonDetailShowsNextLessons(t *testing.T) {
	h := newHarness(t)
	current := models.Video{ID: 30, Course: 5, CategoryLesson: category(1, "Keyframes"), LessonNumber: 3, Video: "https://cdn.example.com/30.mp4"}
	h.videos.videos[30] = current
	h.catalog.course = models.Course{ID: 5, Name: "Motion basics", CreatedAt: "2024-01-10"}
	h.catalog.videos = []models.Video{
		{ID: 20, Course: 5, CategoryLesson: category(1, "Keyframes"), LessonNumber: 2},
		current,
		{ID: 40, Course: 5, CategoryLesson: category(1, "Keyframes"), LessonNumber: 4},
		{ID: 50, Course: 5, CategoryLesson: category(2, "Easing"), LessonNumber: 5},
	}
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/lessons/30", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Motion basics")
	assert.Contains(t, body, "2024-01-10")
	assert.Contains(t, body, "No description")
	assert.Contains(t, body, `href="/lessons/40"`)
	assert.NotContains(t, body, `href="/lessons/20"`)
	assert.NotContains(t, body, `href="/lessons/50"`)
	assert.Contains(t, body, "https://cdn.example.com/30.mp4")
}

func TestLessonDetailCourseFailureKeepsVideo(t *testing.T) {
	h := newHarness(t)
	h.videos.videos[30] = models.Video{ID: 30, Course: 5, CategoryLesson: category(1, "Keyframes"), LessonNumber: 3, Description: "Intro to curves"}
	h.catalog.courseErr = errors.New("courses offline")
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/lessons/30", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Intro to curves")
	assert.NotContains(t, rec.Body.String(), "Course created")
}

func TestLessonDetailAccessDenied(t *testing.T) {
	h := newHarness(t)
	h.profiles.user = models.User{Username: "bob"}
	h.videos.videos[30] = models.Video{ID: 30, Course: 5, LessonNumber: 3}
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/lessons/30", nil)))

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Video course ID: 5")
	assert.Contains(t, body, "Your course ID: not assigned")
}

func TestLessonDetailErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		status   int
		contains string
	}{
		{name: "not found", path: "/lessons/404", status: http.StatusNotFound, contains: "Video not found"},
		{name: "bad id", path: "/lessons/abc", status: http.StatusNotFound, contains: "Video not found"},
		{name: "load error", path: "/lessons/1", err: errors.New("timeout"), status: http.StatusBadGateway, contains: "Loading failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.videos.err = tt.err
			srv := h.handler(t)

			rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, tt.path, nil)))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			assert.Contains(t, rec.Body.String(), `href="/lessons"`)
		})
	}
}

func TestLoginRequiredRedirects(t *testing.T) {
	h := newHarness(t)
	h.videos.err = apiclient.ErrLoginRequired
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/lessons/1", nil)))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLessonsListFiltersCourse(t *testing.T) {
	h := newHarness(t)
	h.catalog.videos = []models.Video{
		{ID: 1, Course: 5, CategoryLesson: category(1, "Keyframes"), LessonNumber: 2},
		{ID: 2, Course: 6, CategoryLesson: category(1, "Keyframes"), LessonNumber: 1},
	}
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/lessons", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/lessons/1"`)
	assert.NotContains(t, rec.Body.String(), `href="/lessons/2"`)
}

func TestMeReturnsSessionUser(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/api/me", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp meResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Username)
	require.NotNil(t, resp.Course)
	assert.Equal(t, 5, *resp.Course)
	assert.Equal(t, "authenticated", resp.State)
}

func TestMentorCreateStreamsUpload(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("course", "5"))
	require.NoError(t, mw.WriteField("category_lesson", "2"))
	require.NoError(t, mw.WriteField("lesson_number", "7"))
	require.NoError(t, mw.WriteField("description", " Curves "))
	part, err := mw.CreateFormFile("video", "curves.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("frames"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/mentor/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, signedIn(req))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/mentor", rec.Header().Get("Location"))
	require.Len(t, h.publisher.created, 1)
	draft := h.publisher.created[0]
	assert.Equal(t, 5, draft.Course)
	assert.Equal(t, 2, draft.CategoryLesson)
	assert.Equal(t, 7, draft.LessonNumber)
	assert.Equal(t, "Curves", draft.Description)
	assert.Equal(t, "curves.mp4", draft.FileName)
	assert.Equal(t, "frames", h.publisher.body)
}

func TestMentorCreateRejectsMissingCourse(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("category_lesson", "2"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/mentor/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, signedIn(req))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Course is required.")
	assert.Empty(t, h.publisher.created)
}

func TestMentorEditPrefillsForm(t *testing.T) {
	h := newHarness(t)
	h.publisher.videos = []models.Video{{ID: 12, Course: 5, CategoryLesson: category(3, "Timing"), LessonNumber: 4, Description: "Beat sync"}}
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(httptest.NewRequest(http.MethodGet, "/mentor?edit=12", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/mentor/videos/12"`)
	assert.Contains(t, body, "Beat sync")
}

func TestMentorUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	rec := serve(t, srv, signedIn(postForm("/mentor/videos/12", url.Values{
		"lesson_number": {"9"},
		"course":        {""},
		"description":   {"Updated"},
	})))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, h.publisher.patched, 1)
	patch := h.publisher.patched[0]
	assert.Equal(t, 12, patch.ID)
	assert.Nil(t, patch.Course)
	require.NotNil(t, patch.LessonNumber)
	assert.Equal(t, 9, *patch.LessonNumber)
	require.NotNil(t, patch.Description)
	assert.Equal(t, "Updated", *patch.Description)

	rec = serve(t, srv, signedIn(postForm("/mentor/videos/12/delete", url.Values{})))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []int{12}, h.publisher.deleted)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	srv := h.handler(t)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
