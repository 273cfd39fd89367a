package api

import (
	"html/template"
	"net/http"

	"github.com/platinummonkey/warden/pkg/accessguard"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/authgate"
	"github.com/platinummonkey/warden/pkg/session"
)

// Page is a guarded dashboard page. Roles, when set, are checked first from the
// session alone; the permission lists then go through a PermissionGuard.
type Page struct {
	Path           string
	Title          string
	AnyPermissions []auth.PermissionCode
	AllPermissions []auth.PermissionCode
	Roles          []auth.RoleName
	// Handler renders the page body. Defaults to a placeholder naming Title.
	Handler http.Handler
}

func (p Page) guarded() bool {
	return len(p.AnyPermissions) > 0 || len(p.AllPermissions) > 0
}

// DefaultPages returns the demo dashboard layout rooted at routes
func DefaultPages(routes authgate.Routes) []Page {
	return []Page{
		{Path: routes.OperatorRoot, Title: "Dashboard"},
		{
			Path:           routes.OperatorRoot + "/projects",
			Title:          "Projects",
			AnyPermissions: []auth.PermissionCode{"project.read", "project.write"},
		},
		{
			Path:  routes.OperatorRoot + "/audit",
			Title: "Audit log",
			Roles: []auth.RoleName{"auditor", auth.RoleAdmin, auth.RoleSystemManager},
		},
		{
			Path:  routes.AdminRoot,
			Title: "Administration",
			Roles: auth.PrivilegedRoles(),
		},
		{
			Path:           routes.AdminRoot + "/users",
			Title:          "Users",
			AllPermissions: []auth.PermissionCode{"user.read", "user.write"},
		},
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{if .UserID}}<header>Signed in as {{.UserID}} <form method="post" action="/api/session/logout"><button>Sign out</button></form></header>{{end}}
<main>
<h1>{{.Title}}</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .ShowLogin}}
{{if .Failed}}<p class="error">Invalid username or password.</p>{{end}}
<form method="post" action="/api/session/login">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input name="password" type="password" autocomplete="current-password"></label>
<button>Sign in</button>
</form>
{{if .SSOPath}}<p><a href="{{.SSOPath}}">Sign in with SSO</a></p>{{end}}
{{end}}
</main>
</body>
</html>
`))

type pageView struct {
	Title     string
	Message   string
	UserID    string
	ShowLogin bool
	Failed    bool
	SSOPath   string
}

func renderPage(w http.ResponseWriter, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, view)
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	view := pageView{
		Title:     "Sign in",
		ShowLogin: true,
		Failed:    r.URL.Query().Get("error") != "",
	}
	if s.opts.SSO != nil {
		view.SSOPath = s.opts.Routes.AltLoginPath
	}
	renderPage(w, http.StatusOK, view)
}

// home sends a signed-in browser to its landing root. Anonymous requests never
// reach it because the route guard redirects them first.
func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	snap, _ := session.SnapshotFromContext(r.Context())
	http.Redirect(w, r, s.landing(snap), http.StatusSeeOther)
}

func (s *Server) landing(snap session.Snapshot) string {
	if snap.IsAdmin() {
		return s.opts.Routes.AdminRoot
	}
	return s.opts.Routes.OperatorRoot
}

func (s *Server) pageHandler(page Page) http.Handler {
	h := page.Handler
	if h == nil {
		title := page.Title
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := session.SnapshotFromContext(r.Context())
			renderPage(w, http.StatusOK, pageView{Title: title, UserID: snap.UserID})
		})
	}
	if page.guarded() {
		h = s.permissionGuard(page).Wrap(h)
	}
	if len(page.Roles) > 0 {
		h = accessguard.RoleGuard{
			Name:         page.Path,
			AllowedRoles: page.Roles,
			Fallback:     s.denied(page.Path),
			Metrics:      s.opts.Metrics,
		}.Wrap(h)
	}
	return h
}
