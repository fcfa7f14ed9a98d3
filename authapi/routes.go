package authapi

// Route path constants shared by the client and the dev server
const (
	// Login, renewal & logout
	RouteLogin   = "/auth/login"
	RouteRefresh = "/auth/refresh"
	RouteLogout  = "/auth/logout"

	// Password management
	RoutePasswordResetRequest = "/auth/password-reset/request"
	RoutePasswordResetConfirm = "/auth/password-reset/confirm"

	// Email verification
	RouteVerifyEmail = "/auth/verify-email"

	// Active sessions; a single session is RouteSessions + "/" + id
	RouteSessions = "/auth/sessions"

	// Protected resource returning the caller's identity
	RouteMe = "/api/me"
)
