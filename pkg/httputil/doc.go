// Package httputil provides the JSON response helpers and the ambient middleware
// shared by every warden HTTP handler.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, snapshot)
//	httputil.WriteUnauthorized(w, "invalid credentials")
//	httputil.WriteServiceUnavailable(w, "token service unavailable")
//
// Errors are always written as {"error": "..."}.
//
// # Request Parsing
//
//	var req LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)
package httputil
