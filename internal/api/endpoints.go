package api

import (
	"net/url"
	"strings"

	"genstudio/internal/models"
)

// Backend routes.
const (
	PathLogin    = "/login"
	PathRegister = "/register"
	PathRefresh  = "/refresh"
	PathLogout   = "/logout"

	PathAIAuth        = "/ai/auth"
	PathAILogin       = "/ai/auth/login"
	PathAIRegister    = "/ai/auth/register"
	PathAIVerifyEmail = "/ai/auth/verify-email"
	PathAIResendOTP   = "/ai/auth/resend-otp"
	PathAIRefresh     = "/ai/auth/refresh"
	PathAILogout      = "/ai/auth/logout"

	PathMe         = "/users/me"
	PathMyAvatar   = "/users/me/avatar"
	PathMyPassword = "/users/me/password"

	PathGenerations       = "/ai/generations"
	PathGenerationUploads = "/ai/generations/uploads"
	PathPlans             = "/ai/plans"
	PathEvents            = "/ai/ws"
)

func AIProfilePath(id string) string {
	return "/profiles/ai/" + url.PathEscape(id)
}

func AIProfileLogoPath(id string) string {
	return AIProfilePath(id) + "/logo"
}

func GenerationPath(id string) string {
	return PathGenerations + "/" + url.PathEscape(id)
}

// RefreshPath returns the refresh route for an account type.
func RefreshPath(accountType string) string {
	if accountType == models.AccountAI {
		return PathAIRefresh
	}
	return PathRefresh
}

// LogoutPath returns the logout route for an account type.
func LogoutPath(accountType string) string {
	if accountType == models.AccountAI {
		return PathAILogout
	}
	return PathLogout
}

var publicPaths = map[string]struct{}{
	PathLogin:         {},
	PathRegister:      {},
	PathRefresh:       {},
	PathAILogin:       {},
	PathAIRegister:    {},
	PathAIVerifyEmail: {},
	PathAIResendOTP:   {},
	PathAIRefresh:     {},
	PathPlans:         {},
}

// ExpectsNoToken reports whether a request to path is normally sent before
// the user has a session. Only used to grade the missing-token log line.
func ExpectsNoToken(path string) bool {
	_, ok := publicPaths[normalizePath(path)]
	return ok
}

// IsRefreshExempt reports whether a 401 from path must be returned as is
// instead of triggering a refresh.
func IsRefreshExempt(path string) bool {
	p := normalizePath(path)
	switch p {
	case PathLogin, PathRegister, PathRefresh, PathLogout:
		return true
	}
	return p == PathAIAuth || strings.HasPrefix(p, PathAIAuth+"/")
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
