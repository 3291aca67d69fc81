// Package vision provides the vision adapters: a remote adapter backed by a
// hosted model and a deterministic stub for offline use.
package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/alchemorsel/mealsnap/internal/infrastructure/ai/vision")

// Backend is a hosted recognition model. Recognize returns the model output
// as a prediction payload the parser understands.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, photo *outbound.Photo, hint *string) ([]byte, error)
	Ping(ctx context.Context) error
}

// RemoteAdapter loads and validates the photo, then asks the backend.
type RemoteAdapter struct {
	loader  outbound.PhotoLoader
	backend Backend
	logger  *zap.Logger
}

// NewRemoteAdapter creates a remote vision adapter
func NewRemoteAdapter(loader outbound.PhotoLoader, backend Backend, logger *zap.Logger) *RemoteAdapter {
	return &RemoteAdapter{
		loader:  loader,
		backend: backend,
		logger:  logger.Named("vision_remote"),
	}
}

var (
	_ outbound.VisionAdapter = (*RemoteAdapter)(nil)
	_ outbound.Pinger        = (*RemoteAdapter)(nil)
)

// Name returns the adapter name recorded on analyses
func (a *RemoteAdapter) Name() string {
	return "remote:" + a.backend.Name()
}

// Predict runs the backend on the referenced photo
func (a *RemoteAdapter) Predict(ctx context.Context, ref mealphoto.PhotoRef, hint *string) (outbound.RawPrediction, error) {
	ctx, span := tracer.Start(ctx, "vision.remote.recognize")
	defer span.End()
	span.SetAttributes(attribute.String("vision.backend", a.backend.Name()))

	start := time.Now()
	photo, err := a.loader.Load(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "photo load failed")
		return outbound.RawPrediction{}, err
	}
	span.SetAttributes(
		attribute.String("photo.format", photo.Format),
		attribute.Int("photo.bytes", len(photo.Data)),
	)

	payload, err := a.backend.Recognize(ctx, photo, hint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognition failed")
		return outbound.RawPrediction{}, fmt.Errorf("%s: %w", a.backend.Name(), err)
	}

	a.logger.Debug("Vision prediction received",
		zap.String("photo", ref.String()),
		zap.Int("payload_bytes", len(payload)),
		zap.Duration("duration", time.Since(start)),
	)
	return outbound.RawPrediction{Payload: payload, Model: a.backend.Name()}, nil
}

// Ping checks the backend is reachable with valid credentials
func (a *RemoteAdapter) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}
