// Package sso implements the single sign-on login method using OpenID Connect.
//
// An OIDCLogin discovers the identity provider, sends the browser to its
// authorization endpoint with a state cookie, and on callback exchanges the
// code for tokens and verifies the ID token. The result is a set of
// auth.Credentials with LoginMethod "sso", ready to be written to the session
// by the login handler.
//
//	login, err := sso.NewOIDCLogin(ctx, sso.Config{
//		IssuerURL:   "https://idp.example.com",
//		ClientID:    "warden",
//		RedirectURL: "https://warden.example.com/api/session/sso/callback",
//		RolesClaim:  "roles",
//	})
//	router.HandleFunc("/login/sso", func(w http.ResponseWriter, r *http.Request) {
//		login.Begin(w, r)
//	})
//
// Role names are read from the configured claim, which may be a list or a
// comma-separated string. No role mapping is applied.
package sso
