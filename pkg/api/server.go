package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/warden/pkg/accessguard"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/authgate"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/sso"
	"github.com/sirupsen/logrus"
)

// DefaultGuardAwait is how long a guarded page waits for permissions before
// serving the loading view.
const DefaultGuardAwait = 5 * time.Second

// Options wires the server's collaborators
type Options struct {
	Manager  *session.Manager
	Resolver *rbac.Resolver
	Tokens   gateway.TokenService
	// SSO enables the alternate login path when set.
	SSO *sso.OIDCLogin

	Routes authgate.Routes
	Cookie middleware.CookieConfig
	// Pages replaces DefaultPages when non-empty.
	Pages []Page
	// GuardAwait defaults to DefaultGuardAwait.
	GuardAwait time.Duration
	// LoginLimiter throttles the login endpoint when set.
	LoginLimiter middleware.Limiter
	// Audit records session and access events. Defaults to audit.NopLogger.
	Audit audit.Logger

	Logger      logrus.FieldLogger
	Metrics     *observability.Metrics
	OTelMetrics *observability.OTelMetrics
}

// Server represents our HTTP server
type Server struct {
	opts   Options
	router *mux.Router
	logger logrus.FieldLogger
}

// NewServer creates a new server and registers its routes
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Routes == (authgate.Routes{}) {
		opts.Routes = authgate.DefaultRoutes()
	}
	if opts.Cookie.Name == "" {
		opts.Cookie = middleware.DefaultCookieConfig()
	}
	if len(opts.Pages) == 0 {
		opts.Pages = DefaultPages(opts.Routes)
	}
	if opts.GuardAwait <= 0 {
		opts.GuardAwait = DefaultGuardAwait
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger{}
	}

	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		logger: opts.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	sessions := middleware.SessionMiddleware(s.opts.Manager, s.opts.Cookie)
	guard := authgate.Middleware(s.opts.Routes, s.opts.Metrics, s.opts.OTelMetrics)

	s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics), sessions)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	login := http.Handler(http.HandlerFunc(s.login))
	if s.opts.LoginLimiter != nil {
		login = middleware.RateLimit(s.opts.LoginLimiter)(login)
	}
	apiRouter.Handle("/session/login", login).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/logout", s.logout).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/refresh", s.refresh).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/sso/callback", s.ssoCallback).Methods(http.MethodGet)
	apiRouter.HandleFunc("/me/permissions", s.getPermissions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/me/permissions/check", s.checkPermissions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/me/permissions/{code}", s.checkPermission).Methods(http.MethodGet)
	apiRouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})

	pages := s.router.NewRoute().Subrouter()
	pages.Use(guard, middleware.ResolutionMiddleware(s.opts.Resolver))
	pages.HandleFunc(s.opts.Routes.LoginPath, s.loginPage).Methods(http.MethodGet)
	if s.opts.Routes.AltLoginPath != "" {
		pages.HandleFunc(s.opts.Routes.AltLoginPath, s.ssoStart).Methods(http.MethodGet)
	}
	pages.HandleFunc("/", s.home).Methods(http.MethodGet)
	for _, page := range s.opts.Pages {
		pages.Handle(page.Path, s.pageHandler(page)).Methods(http.MethodGet)
	}

	// Unknown paths still pass the route guard so they never leak to anonymous users.
	s.router.NotFoundHandler = sessions(guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, http.StatusNotFound, pageView{Title: "Not found", Message: "There is nothing here."})
	})))
}

// Router exposes the router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in request ID, logging and panic recovery
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	)(s.router)
}

func (s *Server) permissionGuard(page Page) accessguard.PermissionGuard {
	return accessguard.PermissionGuard{
		Name:                  page.Path,
		RequiredPermissions:   page.AnyPermissions,
		RequireAllPermissions: page.AllPermissions,
		Fallback:              s.denied(page.Path),
		Await:                 s.opts.GuardAwait,
		Metrics:               s.opts.Metrics,
	}
}

// denied audits the denial before serving the standard panel
func (s *Server) denied(guard string) http.Handler {
	panel := accessguard.AccessDeniedHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.audit(r, audit.EventTypeAccessDenied, audit.EventStatusDenied, func(e *audit.Event) {
			e.Message = "access denied by " + guard
		})
		panel.ServeHTTP(w, r)
	})
}

// audit records an event for r. Sink failures are logged, never surfaced.
func (s *Server) audit(r *http.Request, eventType audit.EventType, status audit.EventStatus, fill func(*audit.Event)) {
	event := audit.NewEvent(r, middleware.ClientIP(r), eventType, status)
	if fill != nil {
		fill(event)
	}
	if err := s.opts.Audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to write audit event")
	}
}
