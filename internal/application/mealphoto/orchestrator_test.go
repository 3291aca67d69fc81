package mealphoto

import (
	"context"
	"sync"
	"testing"
	"time"

	nutritionapp "github.com/alchemorsel/mealsnap/internal/application/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/memory"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/alchemorsel/mealsnap/test/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

var testCategories = testutils.StaticCategories{
	"eggs":    {Name: "eggs", Profile: nutrition.Profile{Calories: 143, ProteinG: 12.6, CarbsG: 0.7, FatG: 9.5}},
	"rice":    {Name: "grains", Profile: nutrition.Profile{Calories: 130, ProteinG: 2.7, CarbsG: 28, FatG: 0.3}},
	"chicken": {Name: "poultry", Profile: nutrition.Profile{Calories: 165, ProteinG: 31, FatG: 3.6}},
}

type OrchestratorTestSuite struct {
	suite.Suite
	adapter   *testutils.FakeVisionAdapter
	store     *memory.MealPhotoStore
	events    *testutils.RecordingPublisher
	orch      *AnalysisOrchestrator
	check     *testutils.AnalysisAssertions
	userID    uuid.UUID
	predicted *testutils.PredictionBuilder
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.predicted = testutils.NewPredictionBuilder(42).
		WithItem("rice", 180, 0.9).
		WithItem("chicken", 150, 0.85).
		WithDishTitle("Chicken rice")
	s.adapter = testutils.NewFakeVisionAdapter(s.predicted.Build())
	s.store = memory.NewMealPhotoStore(memory.NewMealStore())
	s.events = &testutils.RecordingPublisher{}
	s.check = testutils.NewAnalysisAssertions(s.T())
	s.userID = uuid.New()
	s.orch = s.newOrchestrator(OrchestratorConfig{AdapterTimeout: time.Second})
}

func (s *OrchestratorTestSuite) newOrchestrator(cfg OrchestratorConfig) *AnalysisOrchestrator {
	log := zaptest.NewLogger(s.T())
	resolver := nutritionapp.NewResolver(
		[]nutritionapp.Tier{nutritionapp.NewCategoryTier(testCategories)},
		0, outbound.NopMetrics{}, log,
	)
	return NewAnalysisOrchestrator(
		s.adapter,
		NewPredictionParser(DefaultParserConfig()),
		resolver,
		s.store,
		s.store,
		outbound.NopMetrics{},
		s.events,
		cfg,
		log,
	)
}

func (s *OrchestratorTestSuite) analyze(key string) (*mealphoto.Analysis, error) {
	return s.orch.Analyze(context.Background(), inbound.AnalyzeCommand{
		UserID:         s.userID,
		PhotoID:        "photo-1",
		IdempotencyKey: key,
	})
}

func (s *OrchestratorTestSuite) TestAnalyze_Completed() {
	a, err := s.analyze("")
	s.Require().NoError(err)

	s.check.Consistent(a)
	s.Equal(mealphoto.StatusCompleted, a.Status())
	s.Equal("fake", a.Source())
	s.Require().NotNil(a.DishTitle())
	s.Equal("Chicken rice", *a.DishTitle())
	s.Require().Equal(2, a.ItemCount())
	s.Equal(nutrition.SourceCategoryProfile, a.Items()[0].EnrichmentSource)
	// 234 + 247.5
	s.Equal(481.5, a.TotalCalories())
	s.Len(s.events.Named("mealphoto.analyzed"), 1)
}

func (s *OrchestratorTestSuite) TestAnalyze_TelemetryFailuresLeaveResultUnchanged() {
	expected, err := s.analyze("")
	s.Require().NoError(err)

	log := zaptest.NewLogger(s.T())
	for name, sinks := range map[string]struct {
		metrics outbound.PipelineMetrics
		events  outbound.EventPublisher
	}{
		"Panicking": {testutils.PanickingMetrics{}, testutils.PanickingPublisher{}},
		"Nil":       {nil, nil},
	} {
		s.Run(name, func() {
			resolver := nutritionapp.NewResolver(
				[]nutritionapp.Tier{nutritionapp.NewCategoryTier(testCategories)},
				0, sinks.metrics, log,
			)
			store := memory.NewMealPhotoStore(memory.NewMealStore())
			orch := NewAnalysisOrchestrator(s.adapter, NewPredictionParser(DefaultParserConfig()), resolver,
				store, store, sinks.metrics, sinks.events, OrchestratorConfig{AdapterTimeout: time.Second}, log)

			a, err := orch.Analyze(context.Background(), inbound.AnalyzeCommand{UserID: s.userID, PhotoID: "photo-1"})
			s.Require().NoError(err)

			s.check.Consistent(a)
			s.Equal(mealphoto.StatusCompleted, a.Status())
			s.Equal(expected.Items(), a.Items())
			s.Empty(a.Warnings())
			s.Equal(481.5, a.TotalCalories())
			for _, item := range a.Items() {
				s.Equal(nutrition.SourceCategoryProfile, item.EnrichmentSource)
			}
		})
	}
}

func (s *OrchestratorTestSuite) TestAnalyze_SameKeyReplaysWithoutAdapterCall() {
	first, err := s.analyze("k1")
	s.Require().NoError(err)
	second, err := s.analyze("k1")
	s.Require().NoError(err)

	s.Equal(first.ID(), second.ID())
	s.Equal(first.Items(), second.Items())
	s.Equal(1, s.adapter.Calls())
	s.Equal(1, s.store.AnalysisCount())
	s.Len(s.events.Named("mealphoto.analyzed"), 1, "replays publish nothing")
}

func (s *OrchestratorTestSuite) TestAnalyze_DerivedKeyReplays() {
	first, err := s.analyze("")
	s.Require().NoError(err)
	second, err := s.analyze("")
	s.Require().NoError(err)
	s.Equal(first.ID(), second.ID())
	s.Equal(1, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_DifferentKeysComputeTwice() {
	first, err := s.analyze("k1")
	s.Require().NoError(err)
	second, err := s.analyze("k2")
	s.Require().NoError(err)
	s.NotEqual(first.ID(), second.ID())
	s.Equal(2, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_KeysAreScopedToUser() {
	first, err := s.analyze("k1")
	s.Require().NoError(err)

	s.userID = uuid.New()
	second, err := s.analyze("k1")
	s.Require().NoError(err)

	s.NotEqual(first.ID(), second.ID())
	s.Equal(s.userID, second.UserID())
	s.Equal("k1", second.IdempotencyKey())
	s.Equal(2, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_ExpiredKeyRecomputes() {
	first, err := s.analyze("k1")
	s.Require().NoError(err)

	later := time.Now().UTC().Add(25 * time.Hour)
	s.orch.now = func() time.Time { return later }

	second, err := s.analyze("k1")
	s.Require().NoError(err)
	s.NotEqual(first.ID(), second.ID())
	s.Equal(2, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_EmptyPredictionFails() {
	s.adapter.Payload = []byte(`[]`)

	a, err := s.analyze("k-empty")
	s.Require().NoError(err)
	s.check.FailedWith(a, mealphoto.CodeParseEmpty)

	again, err := s.analyze("k-empty")
	s.Require().NoError(err)
	s.Equal(a.ID(), again.ID(), "failed analyses are replayed too")
	s.Equal(1, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_ClampsQuantity() {
	s.adapter.Payload = testutils.NewPredictionBuilder(1).WithItem("eggs", 3000, 0.9).Build()

	a, err := s.analyze("")
	s.Require().NoError(err)
	s.check.Consistent(a)
	item, ok := a.Item(0)
	s.Require().True(ok)
	s.Equal(2000.0, item.QuantityGrams)
	s.Equal(2860.0, item.Calories)
}

func (s *OrchestratorTestSuite) TestAnalyze_UnknownLabelFallsBackToDefault() {
	s.adapter.Payload = testutils.NewPredictionBuilder(1).WithItem("dragon fruit", 120, 0.9).Build()

	a, err := s.analyze("")
	s.Require().NoError(err)
	s.check.Consistent(a)
	s.Equal(nutrition.SourceDefault, a.Items()[0].EnrichmentSource)
	s.Equal(120.0, a.TotalCalories())
	s.check.HasWarning(a, mealphoto.CodeEnrichmentFallback)
}

func (s *OrchestratorTestSuite) TestAnalyze_AdapterTimeout() {
	s.adapter.Delay = time.Second
	s.orch = s.newOrchestrator(OrchestratorConfig{AdapterTimeout: 20 * time.Millisecond})

	start := time.Now()
	a, err := s.analyze("")
	s.Require().NoError(err)
	s.Less(time.Since(start), 500*time.Millisecond)
	s.check.FailedWith(a, mealphoto.CodeInternalError)
}

func (s *OrchestratorTestSuite) TestAnalyze_AdapterPanic() {
	s.adapter.Panic = true

	a, err := s.analyze("")
	s.Require().NoError(err)
	s.check.FailedWith(a, mealphoto.CodeInternalError)
}

func (s *OrchestratorTestSuite) TestAnalyze_AdapterErrorCodes() {
	tests := []struct {
		err  error
		want mealphoto.ErrorCode
	}{
		{outbound.NewAdapterError(mealphoto.CodeRateLimited, nil), mealphoto.CodeRateLimited},
		{outbound.NewAdapterError(mealphoto.CodeImageTooLarge, nil), mealphoto.CodeImageTooLarge},
		{outbound.NewAdapterError(mealphoto.CodeEnrichmentFallback, nil), mealphoto.CodeInternalError},
		{assert.AnError, mealphoto.CodeInternalError},
	}

	for i, tt := range tests {
		s.adapter.Err = tt.err
		a, err := s.analyze(uuid.NewString())
		s.Require().NoError(err, "case %d", i)
		s.check.FailedWith(a, tt.want, "case %d", i)
	}
}

func (s *OrchestratorTestSuite) TestAnalyze_ConcurrentDuplicates() {
	s.adapter.Delay = 50 * time.Millisecond

	const n = 8
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.analyze("k-dup")
			if s.NoError(err) {
				ids[i] = a.ID()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		s.Equal(ids[0], id)
	}
	s.Equal(1, s.store.AnalysisCount())
	s.Equal(1, s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_Validation() {
	_, err := s.orch.Analyze(context.Background(), inbound.AnalyzeCommand{PhotoID: "p"})
	s.True(apperrors.Is(err, apperrors.CodeValidationFailed))

	_, err = s.orch.Analyze(context.Background(), inbound.AnalyzeCommand{UserID: s.userID})
	s.True(apperrors.Is(err, apperrors.CodeValidationFailed))

	_, err = s.orch.Analyze(context.Background(), inbound.AnalyzeCommand{UserID: s.userID, PhotoURL: "not a url"})
	s.True(apperrors.Is(err, apperrors.CodeValidationFailed))

	s.Zero(s.adapter.Calls())
}

func (s *OrchestratorTestSuite) TestAnalyze_CallerCancelStillCommits() {
	s.adapter.Delay = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := s.orch.Analyze(ctx, inbound.AnalyzeCommand{UserID: s.userID, PhotoID: "photo-1", IdempotencyKey: "k-cancel"})
	s.Error(err)

	s.Eventually(func() bool { return s.store.AnalysisCount() == 1 }, time.Second, 10*time.Millisecond)
	a, err := s.analyze("k-cancel")
	s.Require().NoError(err)
	s.Equal(mealphoto.StatusCompleted, a.Status())
	s.Equal(1, s.adapter.Calls())
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func TestClassifyAdapterError(t *testing.T) {
	got := classifyAdapterError(context.DeadlineExceeded)
	assert.Equal(t, mealphoto.CodeInternalError, got.Code)
	assert.Equal(t, mealphoto.SeverityError, got.Severity)
	assert.Contains(t, got.Message, "timed out")

	got = classifyAdapterError(outbound.NewAdapterError(mealphoto.CodeUnsupportedFormat, nil))
	require.Equal(t, mealphoto.CodeUnsupportedFormat, got.Code)
}

func TestMealPhotoService_AnalyzePassesHint(t *testing.T) {
	log := zaptest.NewLogger(t)
	adapter := new(testutils.MockVisionAdapter)
	hint := "ramen"
	adapter.On("Predict", mock.Anything, mealphoto.PhotoRef{URL: "https://cdn.example.com/m.jpg"}, &hint).
		Return(outbound.RawPrediction{Payload: testutils.NewPredictionBuilder(3).WithItem("noodles", 250, 0.8).Build()}, nil).
		Once()

	store := memory.NewMealPhotoStore(memory.NewMealStore())
	orch := NewAnalysisOrchestrator(adapter, NewPredictionParser(DefaultParserConfig()),
		nutritionapp.NewResolver(nil, 0, outbound.NopMetrics{}, log),
		store, store, outbound.NopMetrics{}, &testutils.RecordingPublisher{}, OrchestratorConfig{}, log)
	svc := NewMealPhotoService(orch, nil, store, log)

	dto, err := svc.AnalyzeMealPhoto(context.Background(), inbound.AnalyzeCommand{
		UserID:   uuid.New(),
		PhotoURL: "https://cdn.example.com/m.jpg",
		DishHint: hint,
	})
	require.NoError(t, err)
	assert.Equal(t, mealphoto.StatusCompleted, dto.Status)
	assert.Equal(t, "mock", dto.Source)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, 250.0, dto.Items[0].Calories)
	assert.Contains(t, dto.IdempotencyKey, mealphoto.AutoKeyPrefix)
	adapter.AssertExpectations(t)
}
