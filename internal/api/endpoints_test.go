package api

import (
	"testing"

	"genstudio/internal/models"
)

func TestIsRefreshExempt(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{PathLogin, true},
		{PathRegister, true},
		{PathRefresh, true},
		{PathLogout, true},
		{PathAIRefresh, true},
		{PathAILogin, true},
		{PathAIResendOTP, true},
		{"/ai/auth/refresh/", true},
		{"/login?next=home", true},
		{PathMe, false},
		{PathGenerations, false},
		{"/ai/authors", false},
		{AIProfilePath("p1"), false},
	}

	for _, tc := range tests {
		if got := IsRefreshExempt(tc.path); got != tc.want {
			t.Errorf("IsRefreshExempt(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestExpectsNoToken(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{PathLogin, true},
		{PathAIVerifyEmail, true},
		{PathPlans, true},
		{PathLogout, false},
		{PathMe, false},
	}

	for _, tc := range tests {
		if got := ExpectsNoToken(tc.path); got != tc.want {
			t.Errorf("ExpectsNoToken(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRoutesByAccountType(t *testing.T) {
	if RefreshPath(models.AccountAI) != PathAIRefresh || LogoutPath(models.AccountAI) != PathAILogout {
		t.Error("Expected AI routes for AI accounts")
	}
	if RefreshPath(models.AccountStandard) != PathRefresh || LogoutPath("") != PathLogout {
		t.Error("Expected standard routes otherwise")
	}
	if got := AIProfileLogoPath("a b"); got != "/profiles/ai/a%20b/logo" {
		t.Errorf("Unexpected logo path %q", got)
	}
}
