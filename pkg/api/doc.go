// Package api is warden's HTTP surface: the session endpoints used by the
// dashboard's login flows and the guarded dashboard pages themselves.
//
// # Architecture
//
// Every request passes through request ID, logging, recovery, metrics and
// session middleware. The /api subtree then serves JSON:
//
//	GET  /api/session                  current session summary
//	POST /api/session/login            username/password login (JSON or form)
//	POST /api/session/logout           clear the session
//	POST /api/session/refresh          rotate the token pair
//	GET  /api/session/sso/callback     OIDC redirect target
//	GET  /api/me/permissions           effective permission set
//	GET  /api/me/permissions/check     ?any=a,b&all=c
//
// All other paths are pages. Pages run the route guard first, so an
// unauthenticated browser is sent to the login path with a 303 and an
// authenticated one never sees the login form. Each page may then be wrapped in
// a RoleGuard and a PermissionGuard.
//
//	server := api.NewServer(api.Options{
//		Manager:  manager,
//		Resolver: resolver,
//		Tokens:   tokens,
//		Routes:   cfg.Routes,
//	})
//	http.ListenAndServe(":8080", server.Handler())
package api
