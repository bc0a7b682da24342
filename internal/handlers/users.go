package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"genstudio/internal/middleware"
	"genstudio/internal/models"
	"genstudio/internal/services"
)

type UserHandler struct {
	userService *services.UserService
	uploads     *services.UploadStore
	logger      logrus.FieldLogger
}

func NewUserHandler(userService *services.UserService, uploads *services.UploadStore, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{userService: userService, uploads: uploads, logger: logger}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.userService.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", profile)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	profile, err := h.userService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "Profile updated", profile)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "Password updated", nil)
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	url, ok := saveUpload(w, r, h.uploads, h.logger)
	if !ok {
		return
	}

	profile, err := h.userService.SetAvatar(r.Context(), userID, url)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "Avatar updated", profile)
}

// saveUpload stores the multipart "file" field of r and returns its URL.
func saveUpload(w http.ResponseWriter, r *http.Request, uploads *services.UploadStore, logger logrus.FieldLogger) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+1<<20)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "A file is required")
		return "", false
	}
	defer file.Close()

	url, err := uploads.SaveImage(middleware.GetUserID(r.Context()), file)
	if err != nil {
		handleServiceError(w, logger, err)
		return "", false
	}
	return url, true
}
