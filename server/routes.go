package server

func (s *Server) initRoutes() {
	html := s.HTMLMiddleWare
	api := s.APIMiddleware

	s.RegisterRouteFunc("GET /{$}", ChainMiddleware(s.IndexHandler(), html()...))
	s.RegisterRouteFunc("GET /", ChainMiddleware(s.NotFoundHandler(), html()...))

	// LOGIN
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginPageUIHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), html()...))
	s.RegisterRouteFunc("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), html()...))
	s.RegisterRouteFunc("GET "+RouteAuthOAuth, ChainMiddleware(s.OAuthStartHandler(), html()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), html()...))

	// SIGNUP
	s.RegisterRouteFunc("GET "+RouteSignup, ChainMiddleware(s.SignupGetHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteSignup, ChainMiddleware(s.SignupPostHandler(), html()...))

	// CREDENTIALS
	s.RegisterRouteFunc("GET "+RouteChangePassword, ChainMiddleware(s.ChangePasswordGetHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordPostHandler(), html()...))
	s.RegisterRouteFunc("GET "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordGetHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordPostHandler(), html()...))
	s.RegisterRouteFunc("GET "+RouteResetPassword, ChainMiddleware(s.ResetPasswordGetHandler(), html()...))
	s.RegisterRouteFunc("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordPostHandler(), html()...))

	s.RegisterRouteFunc("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(), html()...))

	// API routes
	s.RegisterRouteFunc("POST "+RouteAPIWorkers, ChainMiddleware(s.CreateWorkerHandler(), api(s.RequireProvisioningKey)...))
	s.RegisterRouteFunc("OPTIONS "+RouteAPIWorkers, ChainMiddleware(s.HealthHandler(), api()...))
	s.RegisterRouteFunc("GET "+RouteAPITranslate, ChainMiddleware(s.TranslateHandler(), api()...))
	s.RegisterRouteFunc("OPTIONS "+RouteAPITranslate, ChainMiddleware(s.HealthHandler(), api()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.deps.Metrics.Handler())

	s.RegisterRouteFunc("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.CacheMiddleware))
	s.RegisterRouteFunc("GET "+RouteStaticJS, ChainMiddleware(s.serveFileHandler(), s.CacheMiddleware))
}
