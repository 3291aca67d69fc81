package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"go.uber.org/zap"
)

// Labels that describe the scene rather than a food on it.
var genericLabels = map[string]bool{
	"food": true, "meal": true, "dish": true, "plate": true, "lunch": true,
	"dinner": true, "breakfast": true, "platter": true, "cuisine": true,
	"produce": true,
}

// RekognitionBackend maps Rekognition label detection onto food items.
// Rekognition reports no portion sizes, so items carry no quantity.
type RekognitionBackend struct {
	client        rekognitioniface.RekognitionAPI
	minConfidence float64
	logger        *zap.Logger
}

// NewRekognitionBackend creates a new Rekognition backend. minConfidence
// is on the 0..1 scale.
func NewRekognitionBackend(client rekognitioniface.RekognitionAPI, minConfidence float64, logger *zap.Logger) *RekognitionBackend {
	return &RekognitionBackend{
		client:        client,
		minConfidence: minConfidence,
		logger:        logger.Named("rekognition"),
	}
}

// Name identifies the backend
func (b *RekognitionBackend) Name() string {
	return "rekognition"
}

type rekognitionItem struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Recognize detects labels and keeps those classified under Food
func (b *RekognitionBackend) Recognize(ctx context.Context, photo *outbound.Photo, _ *string) ([]byte, error) {
	out, err := b.client.DetectLabelsWithContext(ctx, &rekognition.DetectLabelsInput{
		Image:         &rekognition.Image{Bytes: photo.Data},
		MaxLabels:     aws.Int64(25),
		MinConfidence: aws.Float64(b.minConfidence * 100),
	})
	if err != nil {
		return nil, classifyAWSError(err)
	}

	items := make([]rekognitionItem, 0, len(out.Labels))
	for _, l := range out.Labels {
		name := aws.StringValue(l.Name)
		if !isFoodLabel(l) || genericLabels[strings.ToLower(name)] {
			continue
		}
		items = append(items, rekognitionItem{
			Label:      name,
			Confidence: aws.Float64Value(l.Confidence) / 100,
		})
	}

	b.logger.Debug("Rekognition labels detected",
		zap.Int("labels", len(out.Labels)),
		zap.Int("food_items", len(items)),
	)
	return json.Marshal(map[string]interface{}{"items": items})
}

// Ping lists collections, which needs only valid credentials and a region
func (b *RekognitionBackend) Ping(ctx context.Context) error {
	_, err := b.client.ListCollectionsWithContext(ctx, &rekognition.ListCollectionsInput{
		MaxResults: aws.Int64(1),
	})
	return err
}

func isFoodLabel(l *rekognition.Label) bool {
	for _, p := range l.Parents {
		if strings.EqualFold(aws.StringValue(p.Name), "food") {
			return true
		}
	}
	for _, c := range l.Categories {
		if strings.EqualFold(aws.StringValue(c.Name), "food and beverage") {
			return true
		}
	}
	return false
}

func classifyAWSError(err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	switch aerr.Code() {
	case rekognition.ErrCodeThrottlingException, rekognition.ErrCodeProvisionedThroughputExceededException:
		return outbound.NewAdapterError(mealphoto.CodeRateLimited, err)
	case rekognition.ErrCodeImageTooLargeException:
		return outbound.NewAdapterError(mealphoto.CodeImageTooLarge, err)
	case rekognition.ErrCodeInvalidImageFormatException:
		return outbound.NewAdapterError(mealphoto.CodeUnsupportedFormat, err)
	case rekognition.ErrCodeInvalidParameterException:
		return outbound.NewAdapterError(mealphoto.CodeInvalidImage, err)
	}
	return fmt.Errorf("rekognition %s: %w", aerr.Code(), err)
}
