package navigation

// Screen paths served by the hub.
const (
	PathRoot           = "/"
	PathLogin          = "/login"
	PathSignup         = "/signup"
	PathForgotPassword = "/forgot-password"
	PathResetPassword  = "/reset-password"
	PathChangePassword = "/change-password"
	PathDashboard      = "/dashboard"
	PathAuthCallback   = "/auth/callback"
)

// Request parameters understood across screens.
const (
	ParamReturnTo = "returnTo"
	// ParamDashboardReturn is the return target accepted by the dashboard.
	ParamDashboardReturn = "return_to"
	ParamError           = "error"
	ParamForceLogout     = "force_logout"
	ParamTenant          = "org"
)
