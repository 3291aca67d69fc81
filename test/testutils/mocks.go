// Package testutils provides mock implementations for testing
package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/domain/shared"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/stretchr/testify/mock"
)

// MockVisionAdapter is a mock implementation of outbound.VisionAdapter
type MockVisionAdapter struct {
	mock.Mock
}

var _ outbound.VisionAdapter = (*MockVisionAdapter)(nil)

func (m *MockVisionAdapter) Name() string {
	return "mock"
}

func (m *MockVisionAdapter) Predict(ctx context.Context, ref mealphoto.PhotoRef, hint *string) (outbound.RawPrediction, error) {
	args := m.Called(ctx, ref, hint)
	return args.Get(0).(outbound.RawPrediction), args.Error(1)
}

// MockNutrientSource is a mock implementation of outbound.NutrientSource
type MockNutrientSource struct {
	mock.Mock
}

var _ outbound.NutrientSource = (*MockNutrientSource)(nil)

func (m *MockNutrientSource) Name() string {
	return "mock-source"
}

func (m *MockNutrientSource) Lookup(ctx context.Context, label string) (nutrition.Profile, error) {
	args := m.Called(ctx, label)
	return args.Get(0).(nutrition.Profile), args.Error(1)
}

// FakeVisionAdapter returns a fixed payload and counts calls. Delay holds
// each call until it elapses or the context ends; Panic makes every call
// panic.
type FakeVisionAdapter struct {
	Payload []byte
	Err     error
	Delay   time.Duration
	Panic   bool

	calls atomic.Int64
}

var _ outbound.VisionAdapter = (*FakeVisionAdapter)(nil)

// NewFakeVisionAdapter creates a fake returning payload
func NewFakeVisionAdapter(payload []byte) *FakeVisionAdapter {
	return &FakeVisionAdapter{Payload: payload}
}

func (f *FakeVisionAdapter) Name() string {
	return "fake"
}

func (f *FakeVisionAdapter) Predict(ctx context.Context, _ mealphoto.PhotoRef, _ *string) (outbound.RawPrediction, error) {
	f.calls.Add(1)
	if f.Panic {
		panic("fake adapter exploded")
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return outbound.RawPrediction{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return outbound.RawPrediction{}, f.Err
	}
	return outbound.RawPrediction{Payload: f.Payload, Model: "fake-v1"}, nil
}

// Calls returns the number of Predict calls
func (f *FakeVisionAdapter) Calls() int {
	return int(f.calls.Load())
}

// RecordingPublisher collects published events
type RecordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

var _ outbound.EventPublisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

// Named returns the recorded events with the given name
func (p *RecordingPublisher) Named(name string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// StaticCategories is a CategoryProfileTable backed by a label map
type StaticCategories map[string]nutrition.Category

func (s StaticCategories) Match(label string) (nutrition.Category, bool) {
	c, ok := s[label]
	return c, ok
}

// PanickingMetrics is a PipelineMetrics sink whose every call panics.
type PanickingMetrics struct{}

func (PanickingMetrics) AnalysisCompleted(string, mealphoto.Status, time.Duration) {
	panic("metrics unavailable")
}
func (PanickingMetrics) AdapterFailed(string, mealphoto.ErrorCode) { panic("metrics unavailable") }
func (PanickingMetrics) ItemsDropped(string, int)                  { panic("metrics unavailable") }
func (PanickingMetrics) EnrichmentResolved(nutrition.Source)       { panic("metrics unavailable") }
func (PanickingMetrics) TierFailed(string)                         { panic("metrics unavailable") }
func (PanickingMetrics) CaloriesCorrected()                        { panic("metrics unavailable") }
func (PanickingMetrics) ConfirmationCompleted(bool, int)           { panic("metrics unavailable") }

// PanickingPublisher is an EventPublisher whose Publish panics.
type PanickingPublisher struct{}

func (PanickingPublisher) Publish(context.Context, ...shared.DomainEvent) {
	panic("event bus unavailable")
}
