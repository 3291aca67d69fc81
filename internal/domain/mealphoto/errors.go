package mealphoto

import "errors"

// ErrorCode classifies problems met while analysing a photo.
type ErrorCode string

const (
	CodeInvalidImage           ErrorCode = "INVALID_IMAGE"
	CodeUnsupportedFormat      ErrorCode = "UNSUPPORTED_FORMAT"
	CodeImageTooLarge          ErrorCode = "IMAGE_TOO_LARGE"
	CodeParseEmpty             ErrorCode = "PARSE_EMPTY"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeInternalError          ErrorCode = "INTERNAL_ERROR"
	CodeBarcodeDetectionFailed ErrorCode = "BARCODE_DETECTION_FAILED"
	CodePortionInferenceFailed ErrorCode = "PORTION_INFERENCE_FAILED"
	CodeEnrichmentFallback     ErrorCode = "ENRICHMENT_FALLBACK"
	CodeCaloriesCorrected      ErrorCode = "CALORIES_CORRECTED"
)

// Terminal reports whether the code fails the whole analysis.
func (c ErrorCode) Terminal() bool {
	switch c {
	case CodeInvalidImage, CodeUnsupportedFormat, CodeImageTooLarge,
		CodeParseEmpty, CodeRateLimited, CodeInternalError:
		return true
	}
	return false
}

// Severity of an AnalysisError.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// AnalysisError is a problem recorded on an analysis. Terminal problems set
// the failure reason; the rest are surfaced as warnings next to usable items.
type AnalysisError struct {
	Code            ErrorCode `json:"code"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	FallbackApplied bool      `json:"fallback_applied"`
	ItemIndex       *int      `json:"item_index,omitempty"`
}

// NewTerminalError builds an ERROR-severity analysis error.
func NewTerminalError(code ErrorCode, message string) AnalysisError {
	return AnalysisError{Code: code, Severity: SeverityError, Message: message}
}

// NewWarning builds a WARNING-severity analysis error.
func NewWarning(code ErrorCode, message string, fallbackApplied bool) AnalysisError {
	return AnalysisError{Code: code, Severity: SeverityWarning, Message: message, FallbackApplied: fallbackApplied}
}

// ForItem ties the warning to the item at index i.
func (e AnalysisError) ForItem(i int) AnalysisError {
	e.ItemIndex = &i
	return e
}

// Domain errors for meal photo analysis
var (
	ErrMissingPhotoReference = errors.New("either a photo id or a photo url is required")
	ErrInvalidPhotoURL       = errors.New("photo url must be an absolute http(s) url")
	ErrMissingUser           = errors.New("user id is required")
	ErrNoItems               = errors.New("completed analysis must contain at least one item")
	ErrUnexpectedItems       = errors.New("failed analysis must not contain items")
	ErrNotTerminal           = errors.New("failure reason must be a terminal error code")
	ErrAnalysisNotFound      = errors.New("meal photo analysis not found")
)
