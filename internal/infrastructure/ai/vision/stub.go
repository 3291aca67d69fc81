package vision

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
)

// StubName is the adapter name recorded on analyses produced by the stub.
const StubName = "stub"

type stubItem struct {
	Label         string  `json:"label"`
	QuantityGrams float64 `json:"quantity_grams"`
	Confidence    float64 `json:"confidence"`
}

type stubPlate struct {
	title string
	items []stubItem
}

var stubPlates = []stubPlate{
	{"Chicken rice bowl", []stubItem{
		{"grilled chicken breast", 150, 0.92},
		{"white rice", 180, 0.88},
		{"broccoli", 90, 0.81},
	}},
	{"Breakfast plate", []stubItem{
		{"scrambled eggs", 120, 0.9},
		{"whole wheat toast", 60, 0.84},
		{"avocado", 50, 0.72},
	}},
	{"Pasta pomodoro", []stubItem{
		{"spaghetti", 220, 0.91},
		{"tomato sauce", 90, 0.8},
		{"parmesan cheese", 15, 0.66},
	}},
	{"Salmon and greens", []stubItem{
		{"baked salmon", 140, 0.89},
		{"quinoa", 150, 0.77},
		{"mixed salad", 70, 0.7},
	}},
}

// StubAdapter returns a fixed plate chosen by hashing the photo reference,
// so the same photo always yields the same prediction. It never calls out.
type StubAdapter struct{}

// NewStubAdapter creates the deterministic stub adapter
func NewStubAdapter() *StubAdapter {
	return &StubAdapter{}
}

var _ outbound.VisionAdapter = (*StubAdapter)(nil)

// Name returns the adapter name
func (*StubAdapter) Name() string {
	return StubName
}

// Predict returns the plate for ref. A hint becomes the dish title; a hint
// starting with "barcode" reports a failed barcode read.
func (*StubAdapter) Predict(ctx context.Context, ref mealphoto.PhotoRef, hint *string) (outbound.RawPrediction, error) {
	if err := ctx.Err(); err != nil {
		return outbound.RawPrediction{}, err
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(ref.String()))
	plate := stubPlates[h.Sum32()%uint32(len(stubPlates))]

	payload := map[string]interface{}{
		"dish_title": plate.title,
		"items":      plate.items,
	}
	if hint != nil {
		if text := strings.TrimSpace(*hint); text != "" {
			if strings.HasPrefix(strings.ToLower(text), "barcode") {
				payload["barcode_status"] = "failed"
			} else {
				payload["dish_title"] = text
			}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return outbound.RawPrediction{}, err
	}
	return outbound.RawPrediction{Payload: data, Model: StubName}, nil
}
