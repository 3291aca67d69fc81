package mealphoto

import (
	"context"
	"errors"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MealPhotoService implements the meal photo use cases
type MealPhotoService struct {
	orchestrator *AnalysisOrchestrator
	confirmation *ConfirmationService
	analyses     outbound.AnalysisRepository
	logger       *zap.Logger
}

// NewMealPhotoService creates a new meal photo service
func NewMealPhotoService(
	orchestrator *AnalysisOrchestrator,
	confirmation *ConfirmationService,
	analyses outbound.AnalysisRepository,
	logger *zap.Logger,
) inbound.MealPhotoService {
	return &MealPhotoService{
		orchestrator: orchestrator,
		confirmation: confirmation,
		analyses:     analyses,
		logger:       logger.Named("meal-photo-service"),
	}
}

// AnalyzeMealPhoto analyses a photo or replays a previous analysis
func (s *MealPhotoService) AnalyzeMealPhoto(ctx context.Context, cmd inbound.AnalyzeCommand) (*inbound.AnalysisDTO, error) {
	analysis, err := s.orchestrator.Analyze(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return inbound.NewAnalysisDTO(analysis), nil
}

// ConfirmMealPhoto turns accepted items into meal entries
func (s *MealPhotoService) ConfirmMealPhoto(ctx context.Context, cmd inbound.ConfirmCommand) (*inbound.ConfirmationDTO, error) {
	res, err := s.confirmation.Confirm(ctx, cmd)
	if err != nil {
		return nil, err
	}
	dto := &inbound.ConfirmationDTO{
		AnalysisID:     res.AnalysisID,
		CreatedMealIDs: res.CreatedMealIDs,
		Entries:        make([]inbound.MealEntryDTO, len(res.Entries)),
		Replayed:       res.Replayed,
	}
	for i, e := range res.Entries {
		dto.Entries[i] = inbound.NewMealEntryDTO(e)
	}
	return dto, nil
}

// GetMealPhotoAnalysis returns an analysis owned by the user
func (s *MealPhotoService) GetMealPhotoAnalysis(ctx context.Context, analysisID, userID uuid.UUID) (*inbound.AnalysisDTO, error) {
	analysis, err := s.analyses.FindByID(ctx, analysisID)
	if errors.Is(err, mealphoto.ErrAnalysisNotFound) {
		return nil, apperrors.NewAnalysisNotFoundError(analysisID.String())
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load analysis", err)
	}
	if !analysis.IsOwnedBy(userID) {
		return nil, apperrors.NewAnalysisNotFoundError(analysisID.String())
	}
	return inbound.NewAnalysisDTO(analysis), nil
}
