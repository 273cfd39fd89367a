package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/platinummonkey/warden/pkg/auth"
	"golang.org/x/oauth2"
)

// StateCookieName holds the anti-forgery state between Begin and Callback
const StateCookieName = "warden_sso_state"

var (
	// ErrInvalidState is returned when the callback state does not match the cookie
	ErrInvalidState = errors.New("invalid sso state")
	// ErrMissingCode is returned when the callback carries no authorization code
	ErrMissingCode = errors.New("missing authorization code")
	// ErrRefreshRejected is returned when the provider refuses a refresh token
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// Config holds the OIDC client settings
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// RolesClaim names the ID token claim carrying role names. Empty means no roles.
	RolesClaim string
	// HTTPClient is used for discovery, token exchange and key fetches.
	HTTPClient *http.Client
	// SecureCookie marks the state cookie Secure.
	SecureCookie bool
}

// OIDCLogin runs the authorization code flow against one identity provider
type OIDCLogin struct {
	cfg      Config
	verifier *oidc.IDTokenVerifier
	oauth2   *oauth2.Config
}

// NewOIDCLogin discovers the provider at cfg.IssuerURL
func NewOIDCLogin(ctx context.Context, cfg Config) (*OIDCLogin, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("issuer URL, client ID and redirect URL are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(cfg.clientContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCLogin{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

func (c Config) clientContext(ctx context.Context) context.Context {
	if c.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, c.HTTPClient)
}

// AuthCodeURL returns the provider authorization URL for state
func (l *OIDCLogin) AuthCodeURL(state string) string {
	return l.oauth2.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Begin sets a fresh state cookie and redirects the browser to the provider
func (l *OIDCLogin) Begin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   l.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	http.Redirect(w, r, l.AuthCodeURL(state), http.StatusFound)
}

// Callback validates the state, clears the state cookie and exchanges the code
func (l *OIDCLogin) Callback(w http.ResponseWriter, r *http.Request) (auth.Credentials, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		return auth.Credentials{}, ErrInvalidState
	}
	http.SetCookie(w, &http.Cookie{Name: StateCookieName, Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		return auth.Credentials{}, fmt.Errorf("identity provider returned %s", errParam)
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return auth.Credentials{}, ErrMissingCode
	}
	return l.Exchange(r.Context(), code)
}

// Exchange trades code for tokens and builds SSO credentials from the verified
// ID token.
func (l *OIDCLogin) Exchange(ctx context.Context, code string) (auth.Credentials, error) {
	ctx = l.cfg.clientContext(ctx)

	token, err := l.oauth2.Exchange(ctx, code)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return auth.Credentials{}, fmt.Errorf("missing id_token in token response")
	}
	idToken, err := l.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return auth.Credentials{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	return auth.Credentials{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		UserID:       idToken.Subject,
		Roles:        rolesFromClaim(claims[l.cfg.RolesClaim]),
		LoginMethod:  auth.LoginMethodSSO,
	}, nil
}

// Refresh obtains a new access token from the provider
func (l *OIDCLogin) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	source := l.oauth2.TokenSource(l.cfg.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return "", "", fmt.Errorf("%w: %v", ErrRefreshRejected, err)
		}
		return "", "", fmt.Errorf("failed to refresh token: %w", err)
	}
	return token.AccessToken, token.RefreshToken, nil
}

func rolesFromClaim(value interface{}) []auth.RoleName {
	var names []string
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	case string:
		names = strings.Split(v, ",")
	}

	var roles []auth.RoleName
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			roles = append(roles, auth.RoleName(name))
		}
	}
	return roles
}
