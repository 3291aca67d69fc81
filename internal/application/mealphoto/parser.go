package mealphoto

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
)

// Parser errors. Both end the analysis with PARSE_EMPTY.
var (
	ErrUnparseablePayload = errors.New("prediction payload is not a recognised json shape")
	ErrEmptyPrediction    = errors.New("prediction contains no usable items")
)

// ParserConfig bounds what the parser accepts.
type ParserConfig struct {
	ConfidenceGate    float64
	ClampBoundGrams   float64
	MaxItems          int
	DefaultGrams      float64
	DefaultConfidence float64
}

// DefaultParserConfig returns the production bounds.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		ConfidenceGate:    0.3,
		ClampBoundGrams:   2000,
		MaxItems:          5,
		DefaultGrams:      100,
		DefaultConfidence: 0.5,
	}
}

// ParseStats counts what happened to the raw items.
type ParseStats struct {
	Received       int
	EmptyLabel     int
	NonPositive    int
	LowConfidence  int
	Malformed      int
	Clamped        int
	Truncated      int
	DefaultedGrams int
}

// Dropped returns the number of items removed before truncation.
func (s ParseStats) Dropped() int {
	return s.EmptyLabel + s.NonPositive + s.LowConfidence + s.Malformed
}

// ParseResult is the normalised prediction.
type ParseResult struct {
	Items     []mealphoto.ItemPrediction
	DishTitle *string
	Warnings  []mealphoto.AnalysisError
	Stats     ParseStats
}

// PredictionParser turns raw adapter output into validated items.
type PredictionParser struct {
	cfg ParserConfig
}

// NewPredictionParser creates a parser. Zero fields fall back to defaults.
func NewPredictionParser(cfg ParserConfig) *PredictionParser {
	def := DefaultParserConfig()
	if cfg.ConfidenceGate <= 0 {
		cfg.ConfidenceGate = def.ConfidenceGate
	}
	if cfg.ClampBoundGrams <= 0 {
		cfg.ClampBoundGrams = def.ClampBoundGrams
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.DefaultGrams <= 0 {
		cfg.DefaultGrams = def.DefaultGrams
	}
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = def.DefaultConfidence
	}
	return &PredictionParser{cfg: cfg}
}

// flexFloat accepts a JSON number or a numeric string. Magnitudes beyond
// float64 become ±Inf so that range rules still apply to them. Anything else
// leaves it invalid rather than failing the whole payload.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	text := string(bytes.TrimSpace(b))
	if len(text) > 0 && text[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	f.value, f.valid = parseNumber(text)
	return nil
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		// Overflow yields ±Inf, underflow yields ±0.
		return n, true
	case err != nil, math.IsNaN(n), math.IsInf(n, 0):
		return 0, false
	}
	return n, true
}

func firstValid(vals ...*flexFloat) (float64, bool) {
	for _, v := range vals {
		if v != nil && v.valid {
			return v.value, true
		}
	}
	return 0, false
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil {
			if s := strings.TrimSpace(*v); s != "" {
				return s
			}
		}
	}
	return ""
}

type rawItem struct {
	Label              *string    `json:"label"`
	Name               *string    `json:"name"`
	DisplayName        *string    `json:"display_name"`
	DisplayNameCamel   *string    `json:"displayName"`
	QuantityGrams      *flexFloat `json:"quantity_grams"`
	QuantityGramsCamel *flexFloat `json:"quantityGrams"`
	Grams              *flexFloat `json:"grams"`
	Confidence         *flexFloat `json:"confidence"`
	Score              *flexFloat `json:"score"`
}

type envelope struct {
	Items          *[]json.RawMessage `json:"items"`
	DishTitle      *string            `json:"dish_title"`
	DishTitleCamel *string            `json:"dishTitle"`
	BarcodeStatus  *string            `json:"barcode_status"`
}

type candidate struct {
	item         mealphoto.ItemPrediction
	defaultedQty bool
}

// Parse validates and normalises a raw payload.
func (p *PredictionParser) Parse(payload []byte) (ParseResult, error) {
	var res ParseResult

	rawItems, env, err := decodeShape(payload)
	if err != nil {
		return res, err
	}

	if env != nil {
		res.DishTitle = collapseTitle(firstString(env.DishTitle, env.DishTitleCamel))
		if env.BarcodeStatus != nil && strings.EqualFold(strings.TrimSpace(*env.BarcodeStatus), "failed") {
			res.Warnings = append(res.Warnings, mealphoto.NewWarning(
				mealphoto.CodeBarcodeDetectionFailed,
				"barcode could not be read; items recognised visually",
				true,
			))
		}
	}

	res.Stats.Received = len(rawItems)
	survivors := make([]candidate, 0, len(rawItems))
	for _, raw := range rawItems {
		c, ok := p.normalize(raw, &res.Stats)
		if ok {
			survivors = append(survivors, c)
		}
	}

	if len(survivors) > p.cfg.MaxItems {
		res.Stats.Truncated = len(survivors) - p.cfg.MaxItems
		survivors = survivors[:p.cfg.MaxItems]
	}
	if len(survivors) == 0 {
		return res, ErrEmptyPrediction
	}

	res.Items = make([]mealphoto.ItemPrediction, len(survivors))
	for i, c := range survivors {
		res.Items[i] = c.item
		if c.defaultedQty {
			res.Stats.DefaultedGrams++
			res.Warnings = append(res.Warnings, mealphoto.NewWarning(
				mealphoto.CodePortionInferenceFailed,
				"portion size missing for "+strconv.Quote(c.item.Label)+"; assumed "+formatGrams(p.cfg.DefaultGrams),
				true,
			).ForItem(i))
		}
	}
	return res, nil
}

func decodeShape(payload []byte) ([]json.RawMessage, *envelope, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil, ErrUnparseablePayload
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, ErrUnparseablePayload
		}
		return items, nil, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil || env.Items == nil {
			return nil, nil, ErrUnparseablePayload
		}
		return *env.Items, &env, nil
	}
	return nil, nil, ErrUnparseablePayload
}

func (p *PredictionParser) normalize(raw json.RawMessage, stats *ParseStats) (candidate, bool) {
	var ri rawItem
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' || json.Unmarshal(t, &ri) != nil {
		stats.Malformed++
		return candidate{}, false
	}

	rawLabel := firstString(ri.Label, ri.Name)
	label := canonicalLabel(rawLabel)
	if label == "" {
		stats.EmptyLabel++
		return candidate{}, false
	}

	var c candidate
	qty, ok := firstValid(ri.QuantityGrams, ri.QuantityGramsCamel, ri.Grams)
	if !ok {
		qty = p.cfg.DefaultGrams
		c.defaultedQty = true
	}
	if qty <= 0 {
		stats.NonPositive++
		return candidate{}, false
	}
	if qty > p.cfg.ClampBoundGrams {
		qty = p.cfg.ClampBoundGrams
		stats.Clamped++
	}

	conf, ok := firstValid(ri.Confidence, ri.Score)
	if !ok {
		conf = p.cfg.DefaultConfidence
	}
	conf = math.Max(0, math.Min(1, conf))
	if conf < p.cfg.ConfidenceGate {
		stats.LowConfidence++
		return candidate{}, false
	}

	c.item = mealphoto.ItemPrediction{
		Label:         label,
		DisplayName:   displayName(firstString(ri.DisplayName, ri.DisplayNameCamel), rawLabel, label),
		QuantityGrams: qty,
		Confidence:    conf,
	}
	return c, true
}

func canonicalLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// displayName keeps an explicit display name, or the raw label when its
// casing carries information the canonical label lost.
func displayName(explicit, rawLabel, label string) *string {
	if explicit != "" {
		return &explicit
	}
	collapsed := strings.Join(strings.Fields(rawLabel), " ")
	if collapsed != "" && collapsed != label {
		return &collapsed
	}
	return nil
}

func collapseTitle(s string) *string {
	t := strings.Join(strings.Fields(s), " ")
	if t == "" {
		return nil
	}
	return &t
}

func formatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64) + " g"
}
