package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/motioncourse/web/internal/models"
)

// Client exposes the course API endpoints consumed by the web pages.
type Client struct {
	doer Doer
}

// New returns a Client issuing requests through doer, normally the Reauth
// decorator around a Transport.
func New(doer Doer) *Client {
	if doer == nil {
		panic("apiclient: doer must not be nil")
	}
	return &Client{doer: doer}
}

// LoginResult is the outcome of a successful sign-in.
type LoginResult struct {
	User   models.User
	Tokens models.Credentials
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User struct {
		Username string  `json:"username"`
		Email    *string `json:"email"`
		Course   *int    `json:"course"`
	} `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Profile fetches the signed-in user from /student-profile/.
func (c *Client) Profile(ctx context.Context, creds Credentials) (models.User, error) {
	req := Request{Method: http.MethodGet, Path: "/student-profile/"}
	resp, err := c.send(ctx, creds, req)
	if err != nil {
		return models.User{}, err
	}
	return models.DecodeProfile(resp.Body)
}

// Login exchanges a username and password for a credential pair.
func (c *Client) Login(ctx context.Context, creds Credentials, username, password string) (LoginResult, error) {
	req, err := jsonRequest(http.MethodPost, LoginPath, loginRequest{Username: username, Password: password})
	if err != nil {
		return LoginResult{}, err
	}

	var out loginResponse
	if err := c.call(ctx, creds, req, &out); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		User: models.User{
			Username: out.User.Username,
			Email:    out.User.Email,
			Course:   out.User.Course,
		},
		Tokens: models.Credentials{Access: out.Access, Refresh: out.Refresh},
	}, nil
}

// Logout invalidates the server-side session.
func (c *Client) Logout(ctx context.Context, creds Credentials) error {
	_, err := c.send(ctx, creds, Request{Method: http.MethodPost, Path: "/logout/"})
	return err
}

// RefreshToken exchanges a refresh credential for a new access credential.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	req, err := jsonRequest(http.MethodPost, RefreshPath, refreshRequest{Refresh: refresh})
	if err != nil {
		return "", err
	}
	var out refreshResponse
	if err := c.call(ctx, nil, req, &out); err != nil {
		return "", err
	}
	return out.Access, nil
}

// Videos lists every video visible to the session.
func (c *Client) Videos(ctx context.Context, creds Credentials) ([]models.Video, error) {
	var out []models.Video
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: "/videos/"}, &out)
	return out, err
}

// Video fetches one video.
func (c *Client) Video(ctx context.Context, creds Credentials, id int) (models.Video, error) {
	var out models.Video
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: fmt.Sprintf("/videos/%d/", id)}, &out)
	return out, err
}

// CourseVideos lists the videos of one course.
func (c *Client) CourseVideos(ctx context.Context, creds Credentials, courseID int) ([]models.Video, error) {
	req := Request{
		Method: http.MethodGet,
		Path:   "/videos/",
		Query:  url.Values{"course_id": []string{strconv.Itoa(courseID)}},
	}
	var out []models.Video
	err := c.call(ctx, creds, req, &out)
	return out, err
}

// Course fetches course details.
func (c *Client) Course(ctx context.Context, creds Credentials, id int) (models.Course, error) {
	var out models.Course
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: fmt.Sprintf("/courses/%d/", id)}, &out)
	return out, err
}

// MentorVideos lists the videos managed by the signed-in mentor.
func (c *Client) MentorVideos(ctx context.Context, creds Credentials) ([]models.Video, error) {
	var out []models.Video
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: "/mentor/videos/"}, &out)
	return out, err
}

// MentorVideo fetches one video for editing.
func (c *Client) MentorVideo(ctx context.Context, creds Credentials, id int) (models.Video, error) {
	var out models.Video
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: mentorVideoPath(id)}, &out)
	return out, err
}

// CreateVideo creates a video record. Drafts with a SourceURL reference an
// already stored asset; otherwise the file is streamed as multipart form data.
func (c *Client) CreateVideo(ctx context.Context, creds Credentials, draft models.VideoDraft) (models.Video, error) {
	var (
		req Request
		err error
	)
	if draft.SourceURL != "" {
		req, err = jsonRequest(http.MethodPost, "/mentor/videos/", stagedVideo{
			Course:         draft.Course,
			CategoryLesson: draft.CategoryLesson,
			LessonNumber:   draft.LessonNumber,
			Description:    draft.Description,
			Video:          draft.SourceURL,
		})
		if err != nil {
			return models.Video{}, err
		}
	} else {
		req = multipartRequest(http.MethodPost, "/mentor/videos/", draft)
	}

	var out models.Video
	err = c.call(ctx, creds, req, &out)
	return out, err
}

// UpdateVideo applies a partial update.
func (c *Client) UpdateVideo(ctx context.Context, creds Credentials, patch models.VideoPatch) (models.Video, error) {
	req, err := jsonRequest(http.MethodPatch, mentorVideoPath(patch.ID), patch)
	if err != nil {
		return models.Video{}, err
	}
	var out models.Video
	err = c.call(ctx, creds, req, &out)
	return out, err
}

// DeleteVideo removes a video record.
func (c *Client) DeleteVideo(ctx context.Context, creds Credentials, id int) error {
	_, err := c.send(ctx, creds, Request{Method: http.MethodDelete, Path: mentorVideoPath(id)})
	return err
}

type stagedVideo struct {
	Course         int    `json:"course"`
	CategoryLesson int    `json:"category_lesson"`
	LessonNumber   int    `json:"lesson_number,omitempty"`
	Description    string `json:"description,omitempty"`
	Video          string `json:"video"`
}

func mentorVideoPath(id int) string {
	return fmt.Sprintf("/mentor/videos/%d/", id)
}

func (c *Client) send(ctx context.Context, creds Credentials, req Request) (Response, error) {
	resp, err := c.doer.Do(ctx, creds, req)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, statusError(req, resp)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, creds Credentials, req Request, out any) error {
	resp, err := c.send(ctx, creds, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

func jsonRequest(method, path string, payload any) (Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	return Request{
		Method:      method,
		Path:        path,
		ContentType: "application/json",
		Body:        func() (io.Reader, error) { return bytes.NewReader(body), nil },
	}, nil
}

// multipartRequest streams draft as multipart form data. The boundary is fixed
// so every attempt produces an identical body.
func multipartRequest(method, path string, draft models.VideoDraft) Request {
	boundary := "motioncourse-" + uuid.NewString()
	probe := multipart.NewWriter(io.Discard)
	_ = probe.SetBoundary(boundary)

	return Request{
		Method:      method,
		Path:        path,
		ContentType: probe.FormDataContentType(),
		Body: func() (io.Reader, error) {
			if draft.Open == nil {
				return nil, fmt.Errorf("video draft %q has no file", draft.FileName)
			}
			file, err := draft.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %q: %w", draft.FileName, err)
			}

			pr, pw := io.Pipe()
			go func() {
				defer file.Close()
				pw.CloseWithError(writeDraft(pw, boundary, draft, file))
			}()
			return pr, nil
		},
	}
}

func writeDraft(w io.Writer, boundary string, draft models.VideoDraft, file io.Reader) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}

	fields := [][2]string{
		{"course", strconv.Itoa(draft.Course)},
		{"category_lesson", strconv.Itoa(draft.CategoryLesson)},
	}
	if draft.LessonNumber > 0 {
		fields = append(fields, [2]string{"lesson_number", strconv.Itoa(draft.LessonNumber)})
	}
	if draft.Description != "" {
		fields = append(fields, [2]string{"description", draft.Description})
	}
	for _, field := range fields {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("video", draft.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
