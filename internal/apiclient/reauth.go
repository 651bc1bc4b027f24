package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/motioncourse/web/internal/logging"
)

// Endpoint paths with special meaning to the gateway.
const (
	LoginPath   = "/login/"
	RefreshPath = "/api/token/refresh"
)

// ReauthOptions parameterise the refresh-and-retry policy.
type ReauthOptions struct {
	// RefreshPath is the endpoint that exchanges a refresh credential for a new
	// access credential.
	RefreshPath string
	// IsCredentialEndpoint reports paths that must never trigger a refresh,
	// even when they answer 401.
	IsCredentialEndpoint func(path string) bool
	// DedupeRefresh collapses concurrent refreshes of the same refresh
	// credential into one call. Off by default: each failing request refreshes
	// on its own.
	DedupeRefresh bool
}

// IsCredentialEndpoint matches the login and token refresh endpoints.
func IsCredentialEndpoint(path string) bool {
	return strings.Contains(path, "/login") || strings.Contains(path, "/token/refresh")
}

type reauth struct {
	next  Doer
	opts  ReauthOptions
	group *singleflight.Group
}

// Reauth decorates next with the only retry policy of the gateway: when a
// request that is not a credential endpoint answers 401, the refresh
// credential is exchanged once and the request is re-issued once. If no
// refresh credential exists, or the exchange fails, the session is cleared
// and ErrLoginRequired is returned.
func Reauth(next Doer, opts ReauthOptions) Doer {
	if opts.RefreshPath == "" {
		opts.RefreshPath = RefreshPath
	}
	if opts.IsCredentialEndpoint == nil {
		opts.IsCredentialEndpoint = IsCredentialEndpoint
	}
	r := &reauth{next: next, opts: opts}
	if opts.DedupeRefresh {
		r.group = &singleflight.Group{}
	}
	return r
}

func (r *reauth) Do(ctx context.Context, creds Credentials, req Request) (Response, error) {
	resp, err := r.next.Do(ctx, creds, req)
	if err != nil {
		return resp, err
	}
	if resp.Status != http.StatusUnauthorized || creds == nil || r.opts.IsCredentialEndpoint(req.Path) {
		return resp, nil
	}

	logger := logging.FromContext(ctx).With("path", req.Path)

	refresh := creds.Refresh()
	if refresh == "" {
		logger.Info("access rejected and no refresh credential, signing out")
		creds.ClearAccess(ctx)
		return resp, ErrLoginRequired
	}

	logger.Info("access rejected, refreshing")
	access, err := r.refresh(ctx, refresh)
	if err != nil {
		logger.Warn("refresh failed, signing out", "error", err)
		creds.ClearAll(ctx)
		return resp, fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}

	creds.SetAccess(ctx, access)
	return r.next.Do(ctx, creds, req)
}

func (r *reauth) refresh(ctx context.Context, refresh string) (string, error) {
	if r.group == nil {
		return r.exchange(ctx, refresh)
	}
	v, err, shared := r.group.Do(refresh, func() (any, error) {
		return r.exchange(ctx, refresh)
	})
	if shared {
		logging.FromContext(ctx).Debug("joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *reauth) exchange(ctx context.Context, refresh string) (string, error) {
	payload, err := json.Marshal(refreshRequest{Refresh: refresh})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}
	req := Request{
		Method:      http.MethodPost,
		Path:        r.opts.RefreshPath,
		ContentType: "application/json",
		Body:        func() (io.Reader, error) { return bytes.NewReader(payload), nil },
	}

	// The stale access credential is not sent along with the refresh call.
	resp, err := r.next.Do(ctx, nil, req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", statusError(req, resp)
	}

	var out refreshResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Access == "" {
		return "", errors.New("refresh response carried no access credential")
	}
	return out.Access, nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}
