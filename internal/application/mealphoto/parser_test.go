package mealphoto

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionParser_Shapes(t *testing.T) {
	p := NewPredictionParser(DefaultParserConfig())

	tests := []struct {
		name    string
		payload string
		labels  []string
		title   string
	}{
		{
			name:    "Envelope",
			payload: `{"items":[{"label":"Rice","quantity_grams":150,"confidence":0.9}],"dish_title":"  Rice   bowl "}`,
			labels:  []string{"rice"},
			title:   "Rice bowl",
		},
		{
			name:    "BareArray",
			payload: `[{"label":"rice","quantity_grams":150,"confidence":0.9},{"name":"beans","grams":80,"score":0.8}]`,
			labels:  []string{"rice", "beans"},
		},
		{
			name:    "CamelCaseAndStrings",
			payload: `{"items":[{"label":"egg","quantityGrams":"55","confidence":"0.7"}],"dishTitle":"Eggs"}`,
			labels:  []string{"egg"},
			title:   "Eggs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Parse([]byte(tt.payload))
			require.NoError(t, err)

			var labels []string
			for _, it := range res.Items {
				labels = append(labels, it.Label)
			}
			assert.Equal(t, tt.labels, labels)
			if tt.title == "" {
				assert.Nil(t, res.DishTitle)
			} else {
				require.NotNil(t, res.DishTitle)
				assert.Equal(t, tt.title, *res.DishTitle)
			}
		})
	}
}

func TestPredictionParser_Empty(t *testing.T) {
	p := NewPredictionParser(DefaultParserConfig())

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"EmptyArray", `[]`, ErrEmptyPrediction},
		{"EmptyItems", `{"items":[]}`, ErrEmptyPrediction},
		{"AllLowConfidence", `[{"label":"rice","quantity_grams":100,"confidence":0.1}]`, ErrEmptyPrediction},
		{"AllBlankLabels", `[{"label":"   ","quantity_grams":100,"confidence":0.9}]`, ErrEmptyPrediction},
		{"NotJSON", `the model is sorry`, ErrUnparseablePayload},
		{"Blank", `  `, ErrUnparseablePayload},
		{"ObjectWithoutItems", `{"dish_title":"x"}`, ErrUnparseablePayload},
		{"Scalar", `42`, ErrUnparseablePayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPredictionParser_Normalisation(t *testing.T) {
	p := NewPredictionParser(DefaultParserConfig())

	res, err := p.Parse([]byte(`[
		{"label":"eggs","quantity_grams":3000,"confidence":0.9},
		{"label":"bread","quantity_grams":1e400,"confidence":0.9},
		{"label":"toast","quantity_grams":-5,"confidence":0.9},
		{"label":"soup","quantity_grams":-1e400,"confidence":0.9},
		{"label":"jam","quantity_grams":20,"confidence":0.2},
		"garbage",
		{"label":"  Greek   Yogurt ","quantity_grams":120,"confidence":1.7},
		{"label":"tea","confidence":0.6}
	]`))
	require.NoError(t, err)
	require.Len(t, res.Items, 4)

	assert.Equal(t, "eggs", res.Items[0].Label)
	assert.Equal(t, 2000.0, res.Items[0].QuantityGrams, "quantities are clamped")

	assert.Equal(t, "bread", res.Items[1].Label)
	assert.Equal(t, 2000.0, res.Items[1].QuantityGrams, "overflowing quantities are clamped")

	assert.Equal(t, "greek yogurt", res.Items[2].Label)
	require.NotNil(t, res.Items[2].DisplayName)
	assert.Equal(t, "Greek Yogurt", *res.Items[2].DisplayName)
	assert.Equal(t, 1.0, res.Items[2].Confidence, "confidence is clamped to 1")

	assert.Equal(t, "tea", res.Items[3].Label)
	assert.Equal(t, 100.0, res.Items[3].QuantityGrams)

	assert.Equal(t, 8, res.Stats.Received)
	assert.Equal(t, 2, res.Stats.Clamped)
	assert.Equal(t, 2, res.Stats.NonPositive)
	assert.Equal(t, 1, res.Stats.LowConfidence)
	assert.Equal(t, 1, res.Stats.Malformed)
	assert.Equal(t, 1, res.Stats.DefaultedGrams)
	assert.Equal(t, 4, res.Stats.Dropped())

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, mealphoto.CodePortionInferenceFailed, res.Warnings[0].Code)
	require.NotNil(t, res.Warnings[0].ItemIndex)
	assert.Equal(t, 3, *res.Warnings[0].ItemIndex)
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		raw   string
		want  float64
		valid bool
	}{
		{`150`, 150, true},
		{`"150.5"`, 150.5, true},
		{`" 42 "`, 42, true},
		{`1e400`, math.Inf(1), true},
		{`"-1e400"`, math.Inf(-1), true},
		{`"inf"`, 0, false},
		{`"NaN"`, 0, false},
		{`"lots"`, 0, false},
		{`true`, 0, false},
		{`null`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var f flexFloat
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &f))
			assert.Equal(t, tt.valid, f.valid)
			if tt.valid {
				assert.Equal(t, tt.want, f.value)
			}
		})
	}
}

func TestPredictionParser_TruncatesToMaxItems(t *testing.T) {
	p := NewPredictionParser(ParserConfig{MaxItems: 2})

	res, err := p.Parse([]byte(`[
		{"label":"a","quantity_grams":10,"confidence":0.9},
		{"label":"b","quantity_grams":10,"confidence":0.9},
		{"label":"c","quantity_grams":10,"confidence":0.9}
	]`))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a", res.Items[0].Label)
	assert.Equal(t, "b", res.Items[1].Label)
	assert.Equal(t, 1, res.Stats.Truncated)
}

func TestPredictionParser_BarcodeFailure(t *testing.T) {
	p := NewPredictionParser(DefaultParserConfig())

	res, err := p.Parse([]byte(`{"items":[{"label":"granola bar","quantity_grams":40,"confidence":0.8}],"barcode_status":"FAILED"}`))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, mealphoto.CodeBarcodeDetectionFailed, res.Warnings[0].Code)
	assert.True(t, res.Warnings[0].FallbackApplied)
}

func TestPredictionParser_MissingConfidenceUsesDefault(t *testing.T) {
	p := NewPredictionParser(DefaultParserConfig())

	res, err := p.Parse([]byte(`[{"label":"rice","quantity_grams":100}]`))
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Items[0].Confidence)
}
