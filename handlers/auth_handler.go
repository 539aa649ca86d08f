package handlers

import (
	"net/http"

	"github.com/upb/bi-chat-gateway/auth"
	"github.com/upb/bi-chat-gateway/utils"
)

// AuthDeps provides the OAuth handler for route wiring. AuthHandler returns
// nil when no OAuth client is configured.
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// AuthLoginHandler serves GET /auth/login
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogin)
}

// AuthCallbackHandler serves GET /auth/callback
func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleCallback)
}

// AuthLogoutHandler serves GET /auth/logout
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogout)
}

func withAuthHandler(deps AuthDeps, serve func(*auth.Handler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := deps.AuthHandler()
		if h == nil {
			_ = utils.WriteServiceUnavailable(w, "Authentication not configured")
			return
		}
		serve(h, w, r)
	}
}
