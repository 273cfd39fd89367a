package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/accessguard"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// PermissionsResponse is the caller's effective permission set
type PermissionsResponse struct {
	UserID      string             `json:"userId,omitempty"`
	Wildcard    bool               `json:"wildcard"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

// CheckResponse is the outcome of a permission check
type CheckResponse struct {
	Decision string                `json:"decision"`
	Granted  bool                  `json:"granted"`
	Any      []auth.PermissionCode `json:"any,omitempty"`
	All      []auth.PermissionCode `json:"all,omitempty"`
}

func (s *Server) resolve(r *http.Request) (*rbac.Resolution, bool) {
	snap, _ := session.SnapshotFromContext(r.Context())
	if !snap.HasToken() {
		return nil, false
	}
	return s.opts.Resolver.ResolveSync(r.Context(), snap), true
}

// getPermissions handles GET /api/me/permissions
func (s *Server) getPermissions(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolve(r)
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}
	snap, _ := session.SnapshotFromContext(r.Context())
	set := res.Permissions()
	_ = httputil.WriteJSON(w, http.StatusOK, PermissionsResponse{
		UserID:      snap.UserID,
		Wildcard:    set.IsWildcard(),
		Permissions: set,
	})
}

// checkPermissions handles GET /api/me/permissions/check?any=a,b&all=c,d
func (s *Server) checkPermissions(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolve(r)
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}
	query := r.URL.Query()
	anyOf := parseCodes(query["any"])
	all := parseCodes(query["all"])

	decision := accessguard.Decide(res, anyOf, all)
	s.opts.Metrics.RecordAccessDecision("api", decision.String())
	_ = httputil.WriteJSON(w, http.StatusOK, CheckResponse{
		Decision: decision.String(),
		Granted:  decision == accessguard.DecisionGranted,
		Any:      anyOf,
		All:      all,
	})
}

// checkPermission handles GET /api/me/permissions/{code}
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	raw, err := httputil.ParsePathString(r, "code")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	code := strings.TrimSpace(raw)
	if !httputil.RequireNonEmpty(w, code, "code") {
		return
	}
	res, ok := s.resolve(r)
	if !ok {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}
	anyOf := []auth.PermissionCode{auth.PermissionCode(code)}
	decision := accessguard.Decide(res, anyOf, nil)
	s.opts.Metrics.RecordAccessDecision("api", decision.String())
	_ = httputil.WriteJSON(w, http.StatusOK, CheckResponse{
		Decision: decision.String(),
		Granted:  decision == accessguard.DecisionGranted,
		Any:      anyOf,
	})
}

// parseCodes accepts both repeated parameters and comma separated lists
func parseCodes(values []string) []auth.PermissionCode {
	var codes []auth.PermissionCode
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				codes = append(codes, auth.PermissionCode(part))
			}
		}
	}
	return codes
}
