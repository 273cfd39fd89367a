package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/authgate"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/sso"
)

// SessionResponse describes the caller's session. Tokens are never exposed.
type SessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	State         string           `json:"state"`
	UserID        string           `json:"userId,omitempty"`
	Roles         []auth.RoleName  `json:"roles"`
	LoginMethod   auth.LoginMethod `json:"loginMethod,omitempty"`
	// Redirect is where the dashboard should land this session.
	Redirect string `json:"redirect"`
}

// LoginRequest is the JSON body accepted by the login endpoint
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) sessionResponse(snap session.Snapshot) SessionResponse {
	state := authgate.ClassifyState(authgate.InputFromSnapshot(snap, ""))
	resp := SessionResponse{
		Authenticated: snap.HasToken(),
		State:         state.String(),
		Roles:         snap.Roles,
		Redirect:      s.opts.Routes.LoginPath,
	}
	if resp.Roles == nil {
		resp.Roles = []auth.RoleName{}
	}
	if snap.HasToken() {
		resp.UserID = snap.UserID
		resp.LoginMethod = snap.LoginMethod
		resp.Redirect = s.landing(snap)
	}
	return resp
}

// getSession handles GET /api/session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, _ := session.SnapshotFromContext(r.Context())
	_ = httputil.WriteJSON(w, http.StatusOK, s.sessionResponse(snap))
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// login handles POST /api/session/login. JSON bodies get JSON responses; HTML
// form posts are redirected back into the dashboard.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	asJSON := isJSONRequest(r)

	var req LoginRequest
	if asJSON {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httputil.WriteBadRequest(w, "invalid form body")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}

	if req.Username == "" || req.Password == "" {
		s.loginFailed(w, r, asJSON, http.StatusBadRequest, "username and password are required")
		return
	}
	if s.opts.Tokens == nil {
		s.loginFailed(w, r, asJSON, http.StatusServiceUnavailable, "login is not available")
		return
	}

	creds, err := s.opts.Tokens.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidCredentials) {
			logger.WithField("username", req.Username).Info("login rejected")
			s.audit(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, func(e *audit.Event) {
				e.Username = req.Username
				e.LoginMethod = auth.LoginMethodLocal
				e.Message = "invalid credentials"
			})
			s.loginFailed(w, r, asJSON, http.StatusUnauthorized, "invalid username or password")
			return
		}
		logger.WithError(err).Error("token service login failed")
		s.loginFailed(w, r, asJSON, http.StatusServiceUnavailable, "login is temporarily unavailable")
		return
	}
	if creds.LoginMethod == "" {
		creds.LoginMethod = auth.LoginMethodLocal
	}

	snap, err := s.startSession(ctx, w, creds)
	if err != nil {
		logger.WithError(err).Error("failed to store session")
		if asJSON {
			httputil.WriteInternalError(w)
		} else {
			s.loginFailed(w, r, false, http.StatusInternalServerError, "")
		}
		return
	}

	logger.WithField("user_id", creds.UserID).Info("user logged in")
	s.audit(r, audit.EventTypeLogin, audit.EventStatusSuccess, func(e *audit.Event) {
		e.UserID = creds.UserID
		e.Username = req.Username
		e.LoginMethod = creds.LoginMethod
	})
	if asJSON {
		_ = httputil.WriteJSON(w, http.StatusOK, s.sessionResponse(snap))
		return
	}
	http.Redirect(w, r, s.landing(snap), http.StatusSeeOther)
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, asJSON bool, status int, message string) {
	if asJSON {
		httputil.WriteErrorMessage(w, status, message)
		return
	}
	target := s.opts.Routes.LoginPath + "?" + url.Values{"error": {"1"}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// startSession stores creds under a freshly issued session ID and sets the
// cookie. Any session the request already carried is cleared first.
func (s *Server) startSession(ctx context.Context, w http.ResponseWriter, creds auth.Credentials) (session.Snapshot, error) {
	if old := contextkeys.GetSessionID(ctx); old != "" {
		if err := s.opts.Manager.Provider(old).Logout(ctx); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("failed to clear previous session")
		}
	}

	sid, err := auth.NewSessionID()
	if err != nil {
		return session.Snapshot{}, err
	}
	provider := s.opts.Manager.Provider(sid)
	if err := provider.Login(ctx, creds); err != nil {
		return session.Snapshot{}, err
	}
	middleware.SetSessionCookie(w, s.opts.Cookie, sid)
	return provider.Snapshot(ctx)
}

// logout handles POST /api/session/logout. It always clears the cookie.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sid := contextkeys.GetSessionID(ctx); sid != "" {
		snap, _ := session.SnapshotFromContext(ctx)
		if err := s.opts.Manager.Provider(sid).Logout(ctx); err != nil {
			observability.FromContext(ctx).WithError(err).Error("failed to clear session")
		}
		if snap.HasToken() {
			s.audit(r, audit.EventTypeLogout, audit.EventStatusSuccess, func(e *audit.Event) {
				e.UserID = snap.UserID
				e.LoginMethod = snap.LoginMethod
			})
		}
	}
	middleware.ClearSessionCookie(w, s.opts.Cookie)

	if isJSONRequest(r) || wantsJSON(r) {
		httputil.WriteNoContent(w)
		return
	}
	http.Redirect(w, r, s.opts.Routes.LoginPath, http.StatusSeeOther)
}

// refresh handles POST /api/session/refresh
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	snap, _ := session.SnapshotFromContext(ctx)
	sid := contextkeys.GetSessionID(ctx)
	if sid == "" || !snap.HasToken() {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}
	if snap.RefreshToken == "" {
		httputil.WriteUnauthorized(w, "session has no refresh token")
		return
	}

	token, refreshToken, err := s.rotate(ctx, snap)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidCredentials) || errors.Is(err, sso.ErrRefreshRejected) {
			logger.WithError(err).Info("refresh rejected, ending session")
			s.audit(r, audit.EventTypeRefreshRejected, audit.EventStatusFailure, func(e *audit.Event) {
				e.UserID = snap.UserID
				e.LoginMethod = snap.LoginMethod
				e.Message = err.Error()
			})
			if logoutErr := s.opts.Manager.Provider(sid).Logout(ctx); logoutErr != nil {
				logger.WithError(logoutErr).Error("failed to clear session")
			}
			middleware.ClearSessionCookie(w, s.opts.Cookie)
			httputil.WriteUnauthorized(w, "session expired")
			return
		}
		logger.WithError(err).Error("token refresh failed")
		httputil.WriteServiceUnavailable(w, "token refresh is temporarily unavailable")
		return
	}

	provider := s.opts.Manager.Provider(sid)
	if err := provider.RefreshTokens(ctx, token, refreshToken); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			httputil.WriteUnauthorized(w, "not authenticated")
			return
		}
		logger.WithError(err).Error("failed to store refreshed tokens")
		httputil.WriteInternalError(w)
		return
	}

	updated, err := provider.Snapshot(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to read session")
		httputil.WriteInternalError(w)
		return
	}
	s.audit(r, audit.EventTypeRefresh, audit.EventStatusSuccess, func(e *audit.Event) {
		e.UserID = updated.UserID
		e.LoginMethod = updated.LoginMethod
	})
	_ = httputil.WriteJSON(w, http.StatusOK, s.sessionResponse(updated))
}

// rotate asks whoever issued the session for a new token pair
func (s *Server) rotate(ctx context.Context, snap session.Snapshot) (string, string, error) {
	if snap.LoginMethod == auth.LoginMethodSSO && s.opts.SSO != nil {
		return s.opts.SSO.Refresh(ctx, snap.RefreshToken)
	}
	if s.opts.Tokens == nil {
		return "", "", gateway.ErrTokenServiceUnavailable
	}
	creds, err := s.opts.Tokens.Refresh(ctx, snap.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return creds.Token, creds.RefreshToken, nil
}

// ssoStart serves the alternate login path by handing off to the provider
func (s *Server) ssoStart(w http.ResponseWriter, r *http.Request) {
	if s.opts.SSO == nil {
		renderPage(w, http.StatusNotFound, pageView{Title: "Single sign-on", Message: "Single sign-on is not configured."})
		return
	}
	s.opts.SSO.Begin(w, r)
}

// ssoCallback handles GET /api/session/sso/callback
func (s *Server) ssoCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.SSO == nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "single sign-on is not configured")
		return
	}
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	creds, err := s.opts.SSO.Callback(w, r)
	if err != nil {
		logger.WithError(err).Warn("sso callback failed")
		s.audit(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, func(e *audit.Event) {
			e.LoginMethod = auth.LoginMethodSSO
			e.Message = err.Error()
		})
		s.loginFailed(w, r, false, http.StatusUnauthorized, "")
		return
	}

	snap, err := s.startSession(ctx, w, creds)
	if err != nil {
		logger.WithError(err).Error("failed to store session")
		s.loginFailed(w, r, false, http.StatusInternalServerError, "")
		return
	}
	logger.WithField("user_id", creds.UserID).Info("user logged in via sso")
	s.audit(r, audit.EventTypeLogin, audit.EventStatusSuccess, func(e *audit.Event) {
		e.UserID = creds.UserID
		e.LoginMethod = creds.LoginMethod
	})
	http.Redirect(w, r, s.landing(snap), http.StatusSeeOther)
}
