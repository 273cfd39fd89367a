// Package middleware provides the request pipeline that turns a browser cookie
// into an authorization context.
//
// # Middleware Components
//
// SessionMiddleware: cookie to session snapshot
//
//	router.Use(middleware.SessionMiddleware(manager, middleware.DefaultCookieConfig()))
//	// Reads the session cookie, loads the snapshot, stores it in the context
//
// ResolutionMiddleware: snapshot to permission resolution
//
//	router.Use(middleware.ResolutionMiddleware(resolver))
//	// Starts rbac resolution; cancelled when the request ends
//
// RateLimit: throttles credential endpoints per client address
//
//	limiter := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
//	loginRoute.Handler(middleware.RateLimit(limiter)(loginHandler))
//
// A DistributedRateLimiter shares the same limits across replicas through Redis.
//
// # Related Packages
//
//   - pkg/session: session storage and snapshots
//   - pkg/rbac: permission resolution
//   - pkg/authgate: route guard redirects
package middleware
