package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/shared"
)

// VisionAdapter recognises food items in a photo.
type VisionAdapter interface {
	Name() string
	Predict(ctx context.Context, ref mealphoto.PhotoRef, hint *string) (RawPrediction, error)
}

// Pinger is implemented by adapters that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RawPrediction is the unparsed model output.
type RawPrediction struct {
	Payload []byte
	Model   string
}

// AdapterError carries an analysis error code chosen by the adapter.
type AdapterError struct {
	Code mealphoto.ErrorCode
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError classifies err under code.
func NewAdapterError(code mealphoto.ErrorCode, err error) *AdapterError {
	return &AdapterError{Code: code, Err: err}
}

// Errors returned by nutrient sources
var (
	ErrNotFound    = errors.New("nutrient profile not found")
	ErrRateLimited = errors.New("nutrient source rate limited")
)

// NutrientSource is the exact tier: a nutrient database keyed by label.
type NutrientSource interface {
	Name() string
	Lookup(ctx context.Context, label string) (nutrition.Profile, error)
}

// CategoryProfileTable maps labels to coarse food categories.
type CategoryProfileTable interface {
	Match(label string) (nutrition.Category, bool)
}

// Photo is a loaded and validated image.
type Photo struct {
	Data        []byte
	ContentType string
	Format      string
	Width       int
	Height      int
}

// PhotoLoader fetches photo bytes for a reference. Errors are AdapterErrors
// classified as INVALID_IMAGE, UNSUPPORTED_FORMAT or IMAGE_TOO_LARGE when
// the photo itself is at fault.
type PhotoLoader interface {
	Load(ctx context.Context, ref mealphoto.PhotoRef) (*Photo, error)
}

// PipelineMetrics records pipeline telemetry. Implementations must not block.
type PipelineMetrics interface {
	AnalysisCompleted(adapter string, status mealphoto.Status, duration time.Duration)
	AdapterFailed(adapter string, code mealphoto.ErrorCode)
	ItemsDropped(reason string, n int)
	EnrichmentResolved(source nutrition.Source)
	TierFailed(tier string)
	CaloriesCorrected()
	ConfirmationCompleted(replayed bool, entries int)
}

// EventPublisher publishes domain events after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...shared.DomainEvent)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...shared.DomainEvent) {}

// NopMetrics discards all pipeline telemetry.
type NopMetrics struct{}

func (NopMetrics) AnalysisCompleted(string, mealphoto.Status, time.Duration) {}
func (NopMetrics) AdapterFailed(string, mealphoto.ErrorCode)                 {}
func (NopMetrics) ItemsDropped(string, int)                                  {}
func (NopMetrics) EnrichmentResolved(nutrition.Source)                       {}
func (NopMetrics) TierFailed(string)                                         {}
func (NopMetrics) CaloriesCorrected()                                        {}
func (NopMetrics) ConfirmationCompleted(bool, int)                           {}
