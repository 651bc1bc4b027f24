package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	mu            sync.Mutex
	access        string
	refresh       string
	clearedAccess int
	clearedAll    int
}

func (f *fakeCreds) Access() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeCreds) Refresh() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeCreds) SetAccess(_ context.Context, access string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = access
}

func (f *fakeCreds) ClearAccess(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.clearedAccess++
}

func (f *fakeCreds) ClearAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.refresh = ""
	f.clearedAll++
}

// fakeAPI accepts bearer "fresh" only and mints "fresh" for refresh token "good".
type fakeAPI struct {
	refreshCalls atomic.Int32
	profileCalls atomic.Int32
	loginCalls   atomic.Int32
	bearers      []string
	mu           sync.Mutex
	refreshDelay time.Duration
	uploads      []string
}

func (a *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		a.refreshCalls.Add(1)
		if a.refreshDelay > 0 {
			time.Sleep(a.refreshDelay)
		}
		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Refresh != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"token not valid"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	})
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		a.loginCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/student-profile/", func(w http.ResponseWriter, r *http.Request) {
		a.profileCalls.Add(1)
		a.mu.Lock()
		a.bearers = append(a.bearers, r.Header.Get("Authorization"))
		a.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"username":"alice","email":"a@example.com","course":5}]`))
	})
	mux.HandleFunc("/mentor/videos/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		file, header, err := r.FormFile("video")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		contents, _ := io.ReadAll(file)
		a.mu.Lock()
		a.uploads = append(a.uploads, header.Filename+":"+string(contents)+":"+r.FormValue("course"))
		a.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":9,"course":5,"category_lesson":1,"video":"https://cdn/9.mp4","lesson_number":1}`))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, opts ReauthOptions) *Client {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	transport, err := NewTransport(server.URL, time.Second)
	require.NoError(t, err)
	return New(Reauth(transport, opts))
}

func TestExpiredAccessWithRefreshRetriesOnce(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, ReauthOptions{})
	creds := &fakeCreds{access: "stale", refresh: "good"}

	user, err := client.Profile(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.profileCalls.Load())
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, api.bearers)
	assert.Equal(t, "fresh", creds.Access())
	assert.Zero(t, creds.clearedAll)
	assert.Zero(t, creds.clearedAccess)
}

func TestMissingAccessWithRefreshRenewsSilently(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, ReauthOptions{})
	creds := &fakeCreds{refresh: "good"}

	_, err := client.Profile(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, []string{"", "Bearer fresh"}, api.bearers)
}

func TestNoRefreshCredentialClearsWithoutRefreshCall(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, ReauthOptions{})
	creds := &fakeCreds{access: "stale"}

	_, err := client.Profile(context.Background(), creds)
	require.ErrorIs(t, err, ErrLoginRequired)

	assert.Equal(t, int32(0), api.refreshCalls.Load())
	assert.Equal(t, int32(1), api.profileCalls.Load())
	assert.Equal(t, 1, creds.clearedAccess)
	assert.Zero(t, creds.clearedAll)
}

func TestFailedRefreshClearsBothCredentials(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, ReauthOptions{})
	creds := &fakeCreds{access: "stale", refresh: "revoked"}

	_, err := client.Profile(context.Background(), creds)
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(1), api.profileCalls.Load())
	assert.Equal(t, 1, creds.clearedAll)
	assert.Equal(t, "", creds.Refresh())
}

func TestCredentialEndpointsNeverRefresh(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, ReauthOptions{})
	creds := &fakeCreds{access: "stale", refresh: "good"}

	_, err := client.Login(context.Background(), creds, "alice", "wrong")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	_, err = client.RefreshToken(context.Background(), "revoked")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginRequired)

	assert.Equal(t, int32(1), api.loginCalls.Load())
	// Only the explicit RefreshToken call reached the refresh endpoint.
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Zero(t, creds.clearedAll)
	assert.Zero(t, creds.clearedAccess)
}

func TestRetryIsNotRecursive(t *testing.T) {
	var calls, refreshes int
	base := DoerFunc(func(_ context.Context, _ Credentials, req Request) (Response, error) {
		if req.Path == RefreshPath {
			refreshes++
			return Response{Status: http.StatusOK, Body: []byte(`{"access":"fresh"}`)}, nil
		}
		calls++
		return Response{Status: http.StatusUnauthorized}, nil
	})
	doer := Reauth(base, ReauthOptions{})
	creds := &fakeCreds{access: "stale", refresh: "good"}

	resp, err := doer.Do(context.Background(), creds, Request{Method: http.MethodGet, Path: "/videos/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refreshes)
}

func TestTransportErrorsSkipRefresh(t *testing.T) {
	boom := errors.New("connection reset")
	base := DoerFunc(func(context.Context, Credentials, Request) (Response, error) {
		return Response{}, boom
	})
	creds := &fakeCreds{access: "stale", refresh: "good"}

	_, err := Reauth(base, ReauthOptions{}).Do(context.Background(), creds, Request{Method: http.MethodGet, Path: "/videos/"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "stale", creds.Access())
}

func TestConcurrentFailuresRefreshIndependentlyByDefault(t *testing.T) {
	api := &fakeAPI{refreshDelay: 50 * time.Millisecond}
	client := newTestClient(t, api, ReauthOptions{})

	runConcurrentProfiles(t, client, 3)
	assert.Equal(t, int32(3), api.refreshCalls.Load())
}

func TestConcurrentFailuresShareRefreshWhenDeduped(t *testing.T) {
	api := &fakeAPI{refreshDelay: 50 * time.Millisecond}
	client := newTestClient(t, api, ReauthOptions{DedupeRefresh: true})

	runConcurrentProfiles(t, client, 3)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func runConcurrentProfiles(t *testing.T, client *Client, n int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Profile(context.Background(), &fakeCreds{access: "stale", refresh: "good"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestIsCredentialEndpoint(t *testing.T) {
	assert.True(t, IsCredentialEndpoint("/login/"))
	assert.True(t, IsCredentialEndpoint("/api/token/refresh"))
	assert.False(t, IsCredentialEndpoint("/student-profile/"))
	assert.False(t, IsCredentialEndpoint("/logout/"))
}
