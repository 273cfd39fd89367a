package authgate

import (
	"strings"
)

// State classifies a session for routing
type State int

const (
	Unauthenticated State = iota
	AuthenticatedOperator
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case AuthenticatedOperator:
		return "operator"
	case AuthenticatedAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// Input is everything the route guard looks at
type Input struct {
	HasToken    bool
	IsAdmin     bool
	CurrentPath string
}

// RedirectDirective tells the caller to navigate elsewhere. ReplaceHistory means
// the current location must not stay in the browser's back stack.
type RedirectDirective struct {
	Target         string
	ReplaceHistory bool
}

// Routes names the paths the guard knows about
type Routes struct {
	LoginPath    string `yaml:"loginPath"`
	AltLoginPath string `yaml:"altLoginPath"`
	AdminRoot    string `yaml:"adminRoot"`
	OperatorRoot string `yaml:"operatorRoot"`
}

// DefaultRoutes returns the dashboard's standard paths
func DefaultRoutes() Routes {
	return Routes{
		LoginPath:    "/login",
		AltLoginPath: "/login/sso",
		AdminRoot:    "/admin",
		OperatorRoot: "/dashboard",
	}
}

// ClassifyState maps an input to its session state
func ClassifyState(in Input) State {
	switch {
	case !in.HasToken:
		return Unauthenticated
	case in.IsAdmin:
		return AuthenticatedAdmin
	default:
		return AuthenticatedOperator
	}
}

// EvaluateRouteGuard applies the default routes
func EvaluateRouteGuard(in Input) *RedirectDirective {
	return DefaultRoutes().Evaluate(in)
}

// Evaluate returns a redirect or nil when the current path may render
func (r Routes) Evaluate(in Input) *RedirectDirective {
	onLogin := r.IsPublic(in.CurrentPath)

	switch ClassifyState(in) {
	case Unauthenticated:
		if onLogin {
			return nil
		}
		return &RedirectDirective{Target: r.LoginPath, ReplaceHistory: true}
	case AuthenticatedAdmin:
		if onLogin {
			return &RedirectDirective{Target: r.AdminRoot, ReplaceHistory: true}
		}
	case AuthenticatedOperator:
		if onLogin {
			return &RedirectDirective{Target: r.OperatorRoot, ReplaceHistory: true}
		}
	}
	return nil
}

// IsPublic reports whether path is one of the login paths
func (r Routes) IsPublic(path string) bool {
	p := normalizePath(path)
	return p == normalizePath(r.LoginPath) || (r.AltLoginPath != "" && p == normalizePath(r.AltLoginPath))
}

// Validate checks that the routes cannot produce a redirect loop: every target
// must be set, and no landing root may be a login path.
func (r Routes) Validate() error {
	for name, p := range map[string]string{
		"login path":    r.LoginPath,
		"admin root":    r.AdminRoot,
		"operator root": r.OperatorRoot,
	} {
		if !strings.HasPrefix(p, "/") {
			return &RoutesError{Field: name, Path: p, Reason: "must be an absolute path"}
		}
	}
	if r.IsPublic(r.AdminRoot) {
		return &RoutesError{Field: "admin root", Path: r.AdminRoot, Reason: "must not be a login path"}
	}
	if r.IsPublic(r.OperatorRoot) {
		return &RoutesError{Field: "operator root", Path: r.OperatorRoot, Reason: "must not be a login path"}
	}
	return nil
}

// RoutesError describes an invalid route configuration
type RoutesError struct {
	Field  string
	Path   string
	Reason string
}

func (e *RoutesError) Error() string {
	return "invalid " + e.Field + " " + `"` + e.Path + `": ` + e.Reason
}

// normalizePath drops the query string and a trailing slash
func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
