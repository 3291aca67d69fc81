// Package mealphoto provides the application layer for meal photo analysis
// This implements the use cases defined in the inbound ports
package mealphoto

import (
	"context"
	"errors"
	"fmt"
	"time"

	nutritionapp "github.com/alchemorsel/mealsnap/internal/application/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/alchemorsel/mealsnap/internal/application/mealphoto")

// ItemResolver enriches one item label.
type ItemResolver interface {
	Resolve(ctx context.Context, label string, quantityGrams float64) (nutritionapp.Resolution, error)
}

// OrchestratorConfig tunes the analyze pipeline.
type OrchestratorConfig struct {
	AdapterTimeout        time.Duration
	EnrichmentConcurrency int
	IdempotencyRetention  time.Duration
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AdapterTimeout:        20 * time.Second,
		EnrichmentConcurrency: 4,
		IdempotencyRetention:  24 * time.Hour,
	}
}

// AnalysisOrchestrator runs analyze requests end to end.
type AnalysisOrchestrator struct {
	adapter  outbound.VisionAdapter
	parser   *PredictionParser
	resolver ItemResolver
	store    outbound.IdempotencyStore
	analyses outbound.AnalysisRepository
	metrics  outbound.PipelineMetrics
	events   outbound.EventPublisher
	logger   *zap.Logger
	cfg      OrchestratorConfig
	now      func() time.Time

	inflight singleflight.Group
}

// NewAnalysisOrchestrator creates a new orchestrator
func NewAnalysisOrchestrator(
	adapter outbound.VisionAdapter,
	parser *PredictionParser,
	resolver ItemResolver,
	store outbound.IdempotencyStore,
	analyses outbound.AnalysisRepository,
	metrics outbound.PipelineMetrics,
	events outbound.EventPublisher,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *AnalysisOrchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = def.AdapterTimeout
	}
	if cfg.EnrichmentConcurrency <= 0 {
		cfg.EnrichmentConcurrency = def.EnrichmentConcurrency
	}
	if cfg.IdempotencyRetention <= 0 {
		cfg.IdempotencyRetention = def.IdempotencyRetention
	}
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	if events == nil {
		events = outbound.NopPublisher{}
	}
	return &AnalysisOrchestrator{
		adapter:  adapter,
		parser:   parser,
		resolver: resolver,
		store:    store,
		analyses: analyses,
		metrics:  metrics,
		events:   events,
		logger:   logger.Named("analysis-orchestrator"),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type analyzeRequest struct {
	userID      uuid.UUID
	ref         mealphoto.PhotoRef
	hint        *string
	fingerprint string
	storeKey    string
}

// Analyze returns the analysis for a photo, computing it at most once per
// fingerprint within the retention window.
func (o *AnalysisOrchestrator) Analyze(ctx context.Context, cmd inbound.AnalyzeCommand) (*mealphoto.Analysis, error) {
	req, err := o.validate(cmd)
	if err != nil {
		return nil, err
	}

	// The computation outlives a disconnecting caller so that its result is
	// still committed for the retry.
	detached := context.WithoutCancel(ctx)
	ch := o.inflight.DoChan(req.storeKey, func() (interface{}, error) {
		return o.analyze(detached, req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*mealphoto.Analysis), nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), "analyze request cancelled")
	}
}

func (o *AnalysisOrchestrator) validate(cmd inbound.AnalyzeCommand) (analyzeRequest, error) {
	if cmd.UserID == uuid.Nil {
		return analyzeRequest{}, apperrors.NewValidationError(mealphoto.ErrMissingUser.Error())
	}
	ref, err := mealphoto.NewPhotoRef(cmd.PhotoID, cmd.PhotoURL)
	if err != nil {
		return analyzeRequest{}, apperrors.NewValidationError(err.Error())
	}
	req := analyzeRequest{
		userID:      cmd.UserID,
		ref:         ref,
		fingerprint: mealphoto.Fingerprint(cmd.UserID, ref, cmd.IdempotencyKey),
	}
	req.storeKey = mealphoto.StoreKey(req.userID, req.fingerprint)
	if cmd.DishHint != "" {
		hint := cmd.DishHint
		req.hint = &hint
	}
	return req, nil
}

func (o *AnalysisOrchestrator) analyze(ctx context.Context, req analyzeRequest) (*mealphoto.Analysis, error) {
	log := o.logger.With(zap.String("fingerprint", req.fingerprint))

	existing, err := o.lookup(ctx, req.storeKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug("Returning stored analysis", zap.String("analysis_id", existing.ID().String()))
		return existing, nil
	}

	ctx, span := tracer.Start(ctx, "mealphoto.analyze")
	defer span.End()

	start := time.Now()
	analysis, err := o.compute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	expiresAt := analysis.CreatedAt().Add(o.cfg.IdempotencyRetention)
	stored, committed, err := o.store.CommitIfAbsent(ctx, req.storeKey, analysis, expiresAt)
	if err != nil {
		return nil, apperrors.NewDatabaseError("commit analysis", err)
	}
	if !committed {
		log.Info("Concurrent analysis committed first; discarding ours",
			zap.String("analysis_id", stored.ID().String()),
		)
		return stored, nil
	}

	span.SetAttributes(
		attribute.String("analysis.id", analysis.ID().String()),
		attribute.String("analysis.status", string(analysis.Status())),
		attribute.Int("analysis.items", analysis.ItemCount()),
	)
	o.telemetry(func() {
		o.metrics.AnalysisCompleted(o.adapter.Name(), analysis.Status(), time.Since(start))
	})
	o.telemetry(func() {
		o.events.Publish(ctx, analysis.Events()...)
	})

	log.Info("Meal photo analysed",
		zap.String("analysis_id", analysis.ID().String()),
		zap.String("adapter", o.adapter.Name()),
		zap.String("status", string(analysis.Status())),
		zap.Int("items", analysis.ItemCount()),
		zap.Float64("total_calories", analysis.TotalCalories()),
		zap.Duration("duration", time.Since(start)),
	)
	return analysis, nil
}

// lookup returns the stored analysis for a live fingerprint, or nil.
func (o *AnalysisOrchestrator) lookup(ctx context.Context, key string) (*mealphoto.Analysis, error) {
	id, ok, err := o.store.Lookup(ctx, key, o.now())
	if err != nil {
		return nil, apperrors.NewDatabaseError("lookup idempotency key", err)
	}
	if !ok {
		return nil, nil
	}
	a, err := o.analyses.FindByID(ctx, id)
	if errors.Is(err, mealphoto.ErrAnalysisNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load analysis", err)
	}
	return a, nil
}

func (o *AnalysisOrchestrator) compute(ctx context.Context, req analyzeRequest) (*mealphoto.Analysis, error) {
	params := mealphoto.AnalysisParams{
		UserID:         req.userID,
		PhotoRef:       req.ref,
		Hint:           req.hint,
		IdempotencyKey: req.fingerprint,
		Source:         o.adapter.Name(),
		CreatedAt:      o.now(),
	}

	raw, failure := o.predict(ctx, req.ref, req.hint)
	if failure != nil {
		o.telemetry(func() { o.metrics.AdapterFailed(o.adapter.Name(), failure.Code) })
		return mealphoto.NewFailedAnalysis(params, failure.Code, failure.Message)
	}

	parsed, err := o.parser.Parse(raw.Payload)
	o.recordDrops(parsed.Stats)
	if err != nil {
		o.logger.Warn("Prediction payload unusable",
			zap.String("adapter", o.adapter.Name()),
			zap.Error(err),
		)
		return mealphoto.NewFailedAnalysis(params, mealphoto.CodeParseEmpty, err.Error())
	}

	items, warnings, err := o.enrich(ctx, parsed.Items)
	if err != nil {
		return nil, apperrors.Wrap(err, "enrich items")
	}
	return mealphoto.NewCompletedAnalysis(params, items, parsed.DishTitle, append(parsed.Warnings, warnings...))
}

type predictResult struct {
	raw outbound.RawPrediction
	err error
}

// predict calls the adapter in its own goroutine so that a stuck adapter
// cannot hold the request past the deadline.
func (o *AnalysisOrchestrator) predict(ctx context.Context, ref mealphoto.PhotoRef, hint *string) (outbound.RawPrediction, *mealphoto.AnalysisError) {
	ctx, span := tracer.Start(ctx, "vision.predict")
	defer span.End()
	span.SetAttributes(attribute.String("vision.adapter", o.adapter.Name()))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.AdapterTimeout)
	defer cancel()

	ch := make(chan predictResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- predictResult{err: fmt.Errorf("vision adapter panicked: %v", r)}
			}
		}()
		raw, err := o.adapter.Predict(ctx, ref, hint)
		ch <- predictResult{raw: raw, err: err}
	}()

	var res predictResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil {
		return res.raw, nil
	}

	span.RecordError(res.err)
	failure := classifyAdapterError(res.err)
	o.logger.Warn("Vision adapter failed",
		zap.String("adapter", o.adapter.Name()),
		zap.String("code", string(failure.Code)),
		zap.Error(res.err),
	)
	return outbound.RawPrediction{}, &failure
}

func classifyAdapterError(err error) mealphoto.AnalysisError {
	var ae *outbound.AdapterError
	if errors.As(err, &ae) && ae.Code.Terminal() {
		return mealphoto.NewTerminalError(ae.Code, adapterMessage(ae.Code))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return mealphoto.NewTerminalError(mealphoto.CodeInternalError, "vision adapter timed out")
	}
	return mealphoto.NewTerminalError(mealphoto.CodeInternalError, "vision adapter failed")
}

func adapterMessage(code mealphoto.ErrorCode) string {
	switch code {
	case mealphoto.CodeInvalidImage:
		return "photo could not be decoded"
	case mealphoto.CodeUnsupportedFormat:
		return "photo format is not supported"
	case mealphoto.CodeImageTooLarge:
		return "photo exceeds the size limit"
	case mealphoto.CodeRateLimited:
		return "vision provider rate limit reached; retry later"
	case mealphoto.CodeParseEmpty:
		return "vision provider returned no usable items"
	}
	return "vision adapter failed"
}

// enrich resolves every item concurrently. Results are written by index so
// output order matches prediction order.
func (o *AnalysisOrchestrator) enrich(ctx context.Context, items []mealphoto.ItemPrediction) ([]mealphoto.ItemPrediction, []mealphoto.AnalysisError, error) {
	ctx, span := tracer.Start(ctx, "nutrition.enrich")
	defer span.End()

	out := make([]mealphoto.ItemPrediction, len(items))
	perItem := make([][]mealphoto.AnalysisError, len(items))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.EnrichmentConcurrency)
	for i, item := range items {
		g.Go(func() error {
			out[i], perItem[i] = o.enrichOne(ctx, i, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var warnings []mealphoto.AnalysisError
	for _, w := range perItem {
		warnings = append(warnings, w...)
	}
	return out, warnings, nil
}

func (o *AnalysisOrchestrator) enrichOne(ctx context.Context, i int, item mealphoto.ItemPrediction) (enriched mealphoto.ItemPrediction, warnings []mealphoto.AnalysisError) {
	fallback := func(reason string) (mealphoto.ItemPrediction, []mealphoto.AnalysisError) {
		return item.Enrich(nutrition.DefaultProfile(), nutrition.SourceDefault, false),
			[]mealphoto.AnalysisError{
				mealphoto.NewWarning(mealphoto.CodeEnrichmentFallback, reason, true).ForItem(i),
			}
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Enrichment panicked", zap.String("label", item.Label), zap.Any("panic", r))
			enriched, warnings = fallback("nutrient lookup failed for " + item.Label + "; default profile used")
		}
	}()

	res, err := o.resolver.Resolve(ctx, item.Label, item.QuantityGrams)
	if err != nil {
		return fallback("nutrient lookup interrupted for " + item.Label + "; default profile used")
	}

	enriched = item.Enrich(res.Profile, res.Source, res.Corrected)
	if res.Source == nutrition.SourceDefault {
		warnings = append(warnings, mealphoto.NewWarning(
			mealphoto.CodeEnrichmentFallback,
			"no nutrient data for "+item.Label+"; default profile used",
			true,
		).ForItem(i))
	}
	if res.Corrected {
		warnings = append(warnings, mealphoto.NewWarning(
			mealphoto.CodeCaloriesCorrected,
			"calories for "+item.Label+" recomputed from macronutrients",
			false,
		).ForItem(i))
	}
	return enriched, warnings
}

func (o *AnalysisOrchestrator) recordDrops(stats ParseStats) {
	o.telemetry(func() {
		for reason, n := range map[string]int{
			"empty_label":    stats.EmptyLabel,
			"non_positive":   stats.NonPositive,
			"low_confidence": stats.LowConfidence,
			"malformed":      stats.Malformed,
			"truncated":      stats.Truncated,
		} {
			if n > 0 {
				o.metrics.ItemsDropped(reason, n)
			}
		}
	})
}

// telemetry runs a best-effort side effect; a panic in it never reaches the
// caller.
func (o *AnalysisOrchestrator) telemetry(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("Telemetry failed", zap.Any("panic", r))
		}
	}()
	fn()
}
