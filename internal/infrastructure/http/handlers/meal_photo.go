package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apimw "github.com/alchemorsel/mealsnap/internal/infrastructure/http/middleware"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader may carry the analyze idempotency key instead of the body
const IdempotencyKeyHeader = "Idempotency-Key"

// AnalyzeRequest is the body of POST /meal-photos/analyze
type AnalyzeRequest struct {
	PhotoID        string `json:"photo_id" validate:"required_without=PhotoURL,excluded_with=PhotoURL,max=512"`
	PhotoURL       string `json:"photo_url" validate:"required_without=PhotoID,omitempty,url,max=2048"`
	DishHint       string `json:"dish_hint" validate:"max=200"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=255"`
}

// ConfirmRequest is the body of POST /meal-photos/{id}/confirm
type ConfirmRequest struct {
	AcceptedIndexes []int `json:"accepted_indexes" validate:"required"`
}

// MealPhotoHandlers exposes the meal photo workflow over REST
type MealPhotoHandlers struct {
	service  inbound.MealPhotoService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMealPhotoHandlers creates the meal photo handlers
func NewMealPhotoHandlers(
	service inbound.MealPhotoService,
	validate *validator.Validate,
	logger *zap.Logger,
) *MealPhotoHandlers {
	if validate == nil {
		validate = validator.New()
	}
	return &MealPhotoHandlers{
		service:  service,
		validate: validate,
		logger:   logger.Named("meal-photo-handlers"),
	}
}

// Routes mounts the handlers. Callers are expected to have run the UserID
// middleware.
func (h *MealPhotoHandlers) Routes(r chi.Router) {
	r.Post("/analyze", h.Analyze)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/confirm", h.Confirm)
}

// Analyze handles POST /api/v1/meal-photos/analyze
func (h *MealPhotoHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := apimw.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperrors.NewUnauthorizedError(""), h.logger)
		return
	}

	var req AnalyzeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, validationError(err), h.logger)
		return
	}

	analysis, err := h.service.AnalyzeMealPhoto(r.Context(), inbound.AnalyzeCommand{
		UserID:         userID,
		PhotoID:        req.PhotoID,
		PhotoURL:       req.PhotoURL,
		DishHint:       req.DishHint,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, analysis, "", h.logger)
}

// Confirm handles POST /api/v1/meal-photos/{id}/confirm
func (h *MealPhotoHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := apimw.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperrors.NewUnauthorizedError(""), h.logger)
		return
	}
	analysisID, err := pathID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	var req ConfirmRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, validationError(err), h.logger)
		return
	}

	res, err := h.service.ConfirmMealPhoto(r.Context(), inbound.ConfirmCommand{
		AnalysisID:      analysisID,
		UserID:          userID,
		AcceptedIndexes: req.AcceptedIndexes,
	})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeData(w, status, res, "", h.logger)
}

// Get handles GET /api/v1/meal-photos/{id}
func (h *MealPhotoHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := apimw.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperrors.NewUnauthorizedError(""), h.logger)
		return
	}
	analysisID, err := pathID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	analysis, err := h.service.GetMealPhotoAnalysis(r.Context(), analysisID, userID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeData(w, http.StatusOK, analysis, "", h.logger)
}

func (h *MealPhotoHandlers) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.NewBadRequestError("Request body too large")
		}
		return apperrors.NewBadRequestError("Invalid JSON body").WithCause(err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("analysis id must be a UUID")
	}
	return id, nil
}
