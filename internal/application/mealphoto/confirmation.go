package mealphoto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfirmationResult reports the meals bound to a confirmation.
type ConfirmationResult struct {
	AnalysisID     uuid.UUID
	CreatedMealIDs []uuid.UUID
	Entries        []*meal.Entry
	Replayed       bool
}

// ConfirmationService converts selected analysis items into meal entries.
type ConfirmationService struct {
	analyses      outbound.AnalysisRepository
	confirmations outbound.ConfirmationRepository
	meals         outbound.MealStore
	metrics       outbound.PipelineMetrics
	events        outbound.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(
	analyses outbound.AnalysisRepository,
	confirmations outbound.ConfirmationRepository,
	meals outbound.MealStore,
	metrics outbound.PipelineMetrics,
	events outbound.EventPublisher,
	logger *zap.Logger,
) *ConfirmationService {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	if events == nil {
		events = outbound.NopPublisher{}
	}
	return &ConfirmationService{
		analyses:      analyses,
		confirmations: confirmations,
		meals:         meals,
		metrics:       metrics,
		events:        events,
		logger:        logger.Named("confirmation-service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmationKey identifies a confirmation by analysis and the set of
// accepted indexes, independent of order and repetition.
func ConfirmationKey(analysisID uuid.UUID, indexes []int) string {
	norm := normalizeIndexes(indexes)
	parts := make([]string, len(norm))
	for i, idx := range norm {
		parts[i] = strconv.Itoa(idx)
	}
	return analysisID.String() + ":" + strings.Join(parts, ",")
}

func normalizeIndexes(indexes []int) []int {
	seen := make(map[int]struct{}, len(indexes))
	out := make([]int, 0, len(indexes))
	for _, idx := range indexes {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Confirm creates one meal entry per accepted item. Repeating the same
// confirmation returns the original entries without creating new ones.
func (s *ConfirmationService) Confirm(ctx context.Context, cmd inbound.ConfirmCommand) (*ConfirmationResult, error) {
	ctx, span := tracer.Start(ctx, "mealphoto.confirm")
	defer span.End()

	analysis, err := s.loadConfirmable(ctx, cmd.AnalysisID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	indexes := normalizeIndexes(cmd.AcceptedIndexes)
	if len(indexes) == 0 {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidIndex, "At least one item index must be accepted", "")
	}
	for _, idx := range indexes {
		if idx < 0 || idx >= analysis.ItemCount() {
			return nil, apperrors.NewInvalidIndexError(idx, analysis.ItemCount())
		}
	}

	key := ConfirmationKey(analysis.ID(), indexes)
	now := s.now()
	entries := make([]*meal.Entry, 0, len(indexes))
	for _, idx := range indexes {
		item, _ := analysis.Item(idx)
		entry, err := meal.NewEntry(cmd.UserID, analysis.ID(), idx, key, meal.EntrySource{
			Label:            item.Label,
			DisplayName:      item.Name(),
			QuantityGrams:    item.QuantityGrams,
			Calories:         item.Calories,
			Per100g:          item.Nutrients,
			EnrichmentSource: item.EnrichmentSource,
		}, now)
		if err != nil {
			return nil, apperrors.Wrap(err, fmt.Sprintf("build meal entry for item %d", idx))
		}
		entries = append(entries, entry)
	}

	outcome, err := s.confirmations.ConfirmOnce(ctx, outbound.ConfirmationRequest{
		Key:         key,
		AnalysisID:  analysis.ID(),
		UserID:      cmd.UserID,
		Entries:     entries,
		ConfirmedAt: now,
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("confirm analysis", err)
	}

	stored, err := s.meals.FindByConfirmationKey(ctx, key)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load meal entries", err)
	}

	s.telemetry(func() { s.metrics.ConfirmationCompleted(outcome.Replayed, len(outcome.MealIDs)) })
	if !outcome.Replayed {
		s.telemetry(func() {
			s.events.Publish(ctx, mealphoto.MealPhotoConfirmedEvent{
				AnalysisID:  analysis.ID(),
				UserID:      cmd.UserID,
				MealIDs:     outcome.MealIDs,
				ConfirmedAt: now,
			})
		})
	}

	s.logger.Info("Meal photo confirmed",
		zap.String("analysis_id", analysis.ID().String()),
		zap.String("confirmation_key", key),
		zap.Int("entries", len(outcome.MealIDs)),
		zap.Bool("replayed", outcome.Replayed),
	)

	return &ConfirmationResult{
		AnalysisID:     analysis.ID(),
		CreatedMealIDs: outcome.MealIDs,
		Entries:        stored,
		Replayed:       outcome.Replayed,
	}, nil
}

func (s *ConfirmationService) loadConfirmable(ctx context.Context, analysisID, userID uuid.UUID) (*mealphoto.Analysis, error) {
	analysis, err := s.analyses.FindByID(ctx, analysisID)
	if errors.Is(err, mealphoto.ErrAnalysisNotFound) {
		return nil, apperrors.NewAnalysisNotConfirmableError(analysisID.String(), "analysis not found")
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load analysis", err)
	}
	if !analysis.IsOwnedBy(userID) {
		return nil, apperrors.NewAnalysisNotConfirmableError(analysisID.String(), "analysis not found")
	}
	if !analysis.IsConfirmable() {
		return nil, apperrors.NewAnalysisNotConfirmableError(analysisID.String(), "analysis did not complete")
	}
	return analysis, nil
}

func (s *ConfirmationService) telemetry(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Telemetry failed", zap.Any("panic", r))
		}
	}()
	fn()
}
