package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"genstudio/internal/models"
	"genstudio/internal/services"
)

// AuthHandler serves both auth route families. The account type picks the
// tier a route accepts.
type AuthHandler struct {
	authService *services.AuthService
	logger      logrus.FieldLogger
}

func NewAuthHandler(authService *services.AuthService, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.AccountStandard)
}

func (h *AuthHandler) RegisterAI(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.AccountAI)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, accountType string) {
	var req models.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), req, accountType)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	message := "Account created"
	if accountType == models.AccountAI {
		message = "Check your email for the verification code"
	}
	writeJSON(w, http.StatusCreated, message, user.Profile())
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.AccountStandard)
}

func (h *AuthHandler) LoginAI(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.AccountAI)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, accountType string) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	auth, err := h.authService.Login(r.Context(), req, accountType)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "Login successful", auth)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	auth, err := h.authService.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "Email verified", auth)
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.ResendOTPRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.authService.ResendOTP(r.Context(), req.Email); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "Verification code sent", nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, models.AccountStandard)
}

func (h *AuthHandler) RefreshAI(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, models.AccountAI)
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request, accountType string) {
	token := refreshTokenFrom(r)

	tokens, err := h.authService.RefreshToken(r.Context(), token, accountType)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "Token refreshed", tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), refreshTokenFrom(r)); err != nil {
		h.logger.WithError(err).Warn("failed to revoke refresh token")
	}
	writeJSON(w, http.StatusOK, "Logged out successfully", nil)
}

// refreshTokenFrom reads the refresh token from the JSON body, falling back
// to the bearer header.
func refreshTokenFrom(r *http.Request) string {
	var req models.RefreshRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}
