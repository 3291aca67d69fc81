// Package storage loads meal photos from object storage or plain URLs and
// validates them before they reach a vision model.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"strings"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
)

// DefaultMaxBytes bounds photos when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

var (
	errEmptyPhoto   = errors.New("photo is empty")
	errBadWebPChunk = errors.New("webp container has no image chunk")
)

// Validator checks size, format and header integrity of photo bytes.
type Validator struct {
	MaxBytes int64
}

// Validate returns the decoded photo metadata or an AdapterError coded
// IMAGE_TOO_LARGE, UNSUPPORTED_FORMAT or INVALID_IMAGE.
func (v Validator) Validate(data []byte) (*outbound.Photo, error) {
	limit := v.limit()
	if int64(len(data)) > limit {
		return nil, outbound.NewAdapterError(mealphoto.CodeImageTooLarge,
			fmt.Errorf("photo is %d bytes, limit %d", len(data), limit))
	}
	if len(data) == 0 {
		return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage, errEmptyPhoto)
	}

	contentType := http.DetectContentType(data)
	photo := &outbound.Photo{Data: data, ContentType: contentType}

	switch contentType {
	case "image/jpeg", "image/png":
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage, fmt.Errorf("decode header: %w", err))
		}
		if cfg.Width == 0 || cfg.Height == 0 {
			return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage,
				fmt.Errorf("photo has zero dimension %dx%d", cfg.Width, cfg.Height))
		}
		photo.Format, photo.Width, photo.Height = format, cfg.Width, cfg.Height
	case "image/webp":
		if err := checkWebP(data); err != nil {
			return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage, err)
		}
		photo.Format = "webp"
	default:
		if strings.HasPrefix(contentType, "image/") {
			return nil, outbound.NewAdapterError(mealphoto.CodeUnsupportedFormat,
				fmt.Errorf("unsupported photo format %s", contentType))
		}
		return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage,
			fmt.Errorf("content is %s, not an image", contentType))
	}
	return photo, nil
}

// checkWebP verifies the RIFF container carries a VP8, VP8L or VP8X chunk.
func checkWebP(data []byte) error {
	if len(data) < 16 {
		return errBadWebPChunk
	}
	switch string(data[12:16]) {
	case "VP8 ", "VP8L", "VP8X":
		return nil
	}
	return errBadWebPChunk
}
