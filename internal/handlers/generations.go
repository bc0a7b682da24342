package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"genstudio/internal/middleware"
	"genstudio/internal/models"
	"genstudio/internal/services"
)

type GenerationHandler struct {
	generationService *services.GenerationService
	uploads           *services.UploadStore
	logger            logrus.FieldLogger
}

func NewGenerationHandler(generationService *services.GenerationService, uploads *services.UploadStore, logger logrus.FieldLogger) *GenerationHandler {
	return &GenerationHandler{generationService: generationService, uploads: uploads, logger: logger}
}

func (h *GenerationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job, err := h.generationService.Submit(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, "Generation queued", job)
}

func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.generationService.Get(r.Context(), middleware.GetUserID(r.Context()), jobID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", job)
}

func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.generationService.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", jobs)
}

// UploadReference stores a reference image for a later generation request.
func (h *GenerationHandler) UploadReference(w http.ResponseWriter, r *http.Request) {
	url, ok := saveUpload(w, r, h.uploads, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, "Image uploaded", map[string]string{"url": url})
}

func (h *GenerationHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "", services.Plans())
}
