// Package session holds the server-side session store that backs the dashboard's
// opaque session cookie.
//
// A Backend opens a per-session Store addressed by the SHA-256 hash of the cookie
// value. Each Store is a flat key-value map holding the credentials written at login:
// token, refreshToken, userId, roles and loginMethod. Components never cache these;
// they read a fresh Snapshot per request through a Provider, which is also the only
// writer and notifies subscribers after every change.
package session
