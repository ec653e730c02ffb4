package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Public login
	RouteLoginInit    = "/api/v1/auth/login/init"
	RouteCallback     = "/api/v1/auth/callback"
	RouteTokenRefresh = "/api/v1/auth/token/refresh"

	// Corporate login
	RouteCorpLoginInit   = "/api/v1/auth/corp/login/init"
	RouteCorpLoginVerify = "/api/v1/auth/corp/login/verify"
	RouteMFAChallenge    = "/api/v1/auth/mfa/challenge"
	RouteMFAVerify       = "/api/v1/auth/mfa/verify"

	// Authenticated
	RouteLogout           = "/api/v1/auth/logout"
	RouteSessionsMe       = "/api/v1/sessions/me"
	RouteSessionMe        = "/api/v1/sessions/me/{id}"
	RouteStepUpOTPRequest = "/api/v1/auth/step-up/otp/request"
	RouteStepUpOTPVerify  = "/api/v1/auth/step-up/otp/verify"
	RouteUsersMe          = "/api/v1/users/me"

	// Admin
	RouteAdminUsers    = "/api/v1/admin/users"
	RouteAdminUser     = "/api/v1/admin/users/{id}"
	RouteAdminUserRole = "/api/v1/admin/users/{id}/role"

	// Ops
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
