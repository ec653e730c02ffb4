package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// PUBLIC LOGIN
	s.RegisterRouteHandler("POST "+RouteLoginInit, ChainMiddleware(s.StartLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTokenRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))

	// CORPORATE LOGIN
	s.RegisterRouteHandler("POST "+RouteCorpLoginInit, ChainMiddleware(s.CorpLoginInitHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCorpLoginVerify, ChainMiddleware(s.CorpLoginVerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteMFAChallenge, ChainMiddleware(s.MFAChallengeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteMFAVerify, ChainMiddleware(s.MFAVerifyHandler(), s.APIMiddleware()...))

	// Bearer routes, exactly one supported role
	authed := s.APIMiddleware(s.RequireAuth(), s.RequireExactlyOneRole())
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), authed...))
	s.RegisterRouteHandler("GET "+RouteSessionsMe, ChainMiddleware(s.ListSessionsHandler(), authed...))
	s.RegisterRouteHandler("DELETE "+RouteSessionsMe, ChainMiddleware(s.RevokeAllSessionsHandler(), authed...))
	s.RegisterRouteHandler("DELETE "+RouteSessionMe, ChainMiddleware(s.RevokeSessionHandler(), authed...))
	s.RegisterRouteHandler("POST "+RouteStepUpOTPRequest, ChainMiddleware(s.StepUpRequestHandler(), authed...))
	s.RegisterRouteHandler("POST "+RouteStepUpOTPVerify, ChainMiddleware(s.StepUpVerifyHandler(), authed...))
	s.RegisterRouteHandler("GET "+RouteUsersMe, ChainMiddleware(s.GetMeHandler(), authed...))
	s.RegisterRouteHandler("PUT "+RouteUsersMe, ChainMiddleware(s.UpdateMeHandler(), authed...))

	// Admin routes
	admin := s.APIMiddleware(s.RequireAuth(), s.RequireAdmin())
	s.RegisterRouteHandler("POST "+RouteAdminUsers, ChainMiddleware(s.ProvisionUserHandler(), admin...))
	s.RegisterRouteHandler("PUT "+RouteAdminUserRole, ChainMiddleware(s.ChangeUserRoleHandler(), admin...))
	s.RegisterRouteHandler("DELETE "+RouteAdminUser, ChainMiddleware(s.DeprovisionUserHandler(), admin...))

	// OPS
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.CorsMiddleware))
}
