package server

import "github.com/jrsteele09/sso-hub/navigation"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Screens
	RouteRoot           = navigation.PathRoot
	RouteLogin          = navigation.PathLogin
	RouteSignup         = navigation.PathSignup
	RouteDashboard      = navigation.PathDashboard
	RouteChangePassword = navigation.PathChangePassword
	RouteForgotPassword = navigation.PathForgotPassword
	RouteResetPassword  = navigation.PathResetPassword

	// Auth Routes - Login & Logout
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthOAuth    = "/auth/oauth/{provider}"
	RouteAuthCallback = navigation.PathAuthCallback

	// API Routes
	RouteAPIWorkers   = "/api/workers"
	RouteAPITranslate = "/api/translate"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
	RouteStaticJS  = "/js/{file}"
)

// Form fields and query parameters local to the shell.
const (
	fieldIdentifier = "identifier"
	fieldSecret     = "secret"
	fieldCurrent    = "current"
	fieldNew        = "new"
	fieldRepeat     = "repeat"
	fieldKind       = "kind"
	fieldEmail      = "email"
	fieldTerms      = "terms"
	fieldMarketing  = "marketing"

	paramNext  = "next"
	paramSent  = "sent"
	paramDone  = "done"
	paramCode  = "code"
	paramText  = "text"
	paramFrom  = "from"
	paramTo    = "to"
	headerKey  = "X-Provisioning-Key"
	headerHTMX = "HX-Request"
)
