package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
)

var (
	// ErrInvalidCredentials is returned when the issuer rejects a login or refresh.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenServiceUnavailable wraps transport and decoding failures.
	ErrTokenServiceUnavailable = errors.New("token service unavailable")
)

// TokenService issues and refreshes session credentials. Tokens are opaque here;
// verifying them is the issuer's job.
type TokenService interface {
	Login(ctx context.Context, username, password string) (auth.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Credentials, error)
}

// HTTPTokenService talks to the external issuance service.
type HTTPTokenService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTokenService creates a client for the service at baseURL
func NewHTTPTokenService(baseURL string, client *http.Client) (*HTTPTokenService, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid token service URL %q", baseURL)
	}
	if client == nil {
		client = NewHTTPClient(15 * time.Second)
	}
	return &HTTPTokenService{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// tokenResponse accepts both a flat body and one wrapped in {data: ...}.
type tokenResponse struct {
	auth.Credentials
	Data *auth.Credentials `json:"data"`
}

// Login exchanges a username and password for credentials
func (s *HTTPTokenService) Login(ctx context.Context, username, password string) (auth.Credentials, error) {
	return s.post(ctx, "/auth/login", loginRequest{Username: username, Password: password})
}

// Refresh exchanges a refresh token for a new token pair
func (s *HTTPTokenService) Refresh(ctx context.Context, refreshToken string) (auth.Credentials, error) {
	if refreshToken == "" {
		return auth.Credentials{}, fmt.Errorf("refresh: %w", ErrInvalidCredentials)
	}
	return s.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken})
}

func (s *HTTPTokenService) post(ctx context.Context, path string, payload interface{}) (auth.Credentials, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("%w: build request: %w", ErrTokenServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("%w: POST %s: %w", ErrTokenServiceUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("%w: read response: %w", ErrTokenServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return auth.Credentials{}, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return auth.Credentials{}, fmt.Errorf("%w: POST %s returned %d", ErrTokenServiceUnavailable, path, resp.StatusCode)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return auth.Credentials{}, fmt.Errorf("%w: decode response: %w", ErrTokenServiceUnavailable, err)
	}
	creds := decoded.Credentials
	if decoded.Data != nil {
		creds = *decoded.Data
	}
	if creds.Token == "" {
		return auth.Credentials{}, fmt.Errorf("%w: response carried no token", ErrTokenServiceUnavailable)
	}
	if creds.LoginMethod == "" {
		creds.LoginMethod = auth.LoginMethodLocal
	}
	return creds, nil
}
