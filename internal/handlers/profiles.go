package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"genstudio/internal/middleware"
	"genstudio/internal/models"
	"genstudio/internal/services"
)

// ProfileHandler serves the AI company profiles.
type ProfileHandler struct {
	userService *services.UserService
	uploads     *services.UploadStore
	logger      logrus.FieldLogger
}

func NewProfileHandler(userService *services.UserService, uploads *services.UploadStore, logger logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{userService: userService, uploads: uploads, logger: logger}
}

func (h *ProfileHandler) UpdateAIProfile(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.UpdateAIProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	profile, err := h.userService.UpdateCompany(r.Context(), middleware.GetUserID(r.Context()), companyID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "Profile updated", profile)
}

func (h *ProfileHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	url, ok := saveUpload(w, r, h.uploads, h.logger)
	if !ok {
		return
	}

	profile, err := h.userService.SetLogo(r.Context(), middleware.GetUserID(r.Context()), companyID, url)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "Logo updated", profile)
}
