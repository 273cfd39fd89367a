// Package authgate decides where a request should be sent based only on whether
// the session holds a token and whether it is an admin session.
//
// EvaluateRouteGuard is a pure function: unauthenticated requests for anything but
// a login page go to the login page, and authenticated requests for a login page
// go to the admin or operator root. Everything else renders as requested. Gate
// adds idempotence for long-lived consumers, and Middleware applies the decision
// to HTTP page routes with a 303 See Other.
package authgate
