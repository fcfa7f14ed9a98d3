package devserver

import "github.com/jrsteele09/go-session-client/authapi"

func (s *Server) initRoutes() {
	// Login, renewal & logout
	s.RegisterRouteHandler("POST "+authapi.RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+authapi.RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+authapi.RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Password reset & email verification
	s.RegisterRouteHandler("POST "+authapi.RoutePasswordResetRequest, ChainMiddleware(s.PasswordResetRequestHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+authapi.RoutePasswordResetConfirm, ChainMiddleware(s.PasswordResetConfirmHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+authapi.RouteVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.APIMiddleware()...))

	// Protected routes (require a valid access token)
	s.RegisterRouteHandler("GET "+authapi.RouteSessions, ChainMiddleware(s.ListSessionsHandler(), s.APIMiddleware(s.RequireAuth)...))
	s.RegisterRouteHandler("DELETE "+authapi.RouteSessions+"/{id}", ChainMiddleware(s.RevokeSessionHandler(), s.APIMiddleware(s.RequireAuth)...))
	s.RegisterRouteHandler("GET "+authapi.RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth)...))
}
