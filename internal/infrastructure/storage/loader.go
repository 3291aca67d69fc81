package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"
)

var errNoPhotoStore = errors.New("photo id given but no photo store is configured")

// Loader routes photo references: ids are read from S3, URLs are fetched
// over HTTP.
type Loader struct {
	objects *S3Loader
	web     *HTTPLoader
}

// NewLoader creates a routing loader. objects may be nil when no bucket is
// configured.
func NewLoader(objects *S3Loader, web *HTTPLoader) *Loader {
	return &Loader{objects: objects, web: web}
}

var _ outbound.PhotoLoader = (*Loader)(nil)

// Load fetches and validates the referenced photo
func (l *Loader) Load(ctx context.Context, ref mealphoto.PhotoRef) (*outbound.Photo, error) {
	if ref.ID != "" {
		if l.objects == nil {
			return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage, errNoPhotoStore)
		}
		return l.objects.Load(ctx, ref)
	}
	return l.web.Load(ctx, ref)
}

// HTTPLoader downloads photos by URL.
type HTTPLoader struct {
	client    *http.Client
	validator Validator
	logger    *zap.Logger
}

// NewHTTPLoader creates a URL loader with a per-request timeout
func NewHTTPLoader(timeout time.Duration, maxBytes int64, logger *zap.Logger) *HTTPLoader {
	return &HTTPLoader{
		client:    &http.Client{Timeout: timeout},
		validator: Validator{MaxBytes: maxBytes},
		logger:    logger.Named("photo_http"),
	}
}

// Load downloads ref.URL and validates it
func (l *HTTPLoader) Load(ctx context.Context, ref mealphoto.PhotoRef) (*outbound.Photo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage, fmt.Errorf("build request: %w", err))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Debug("Photo fetch rejected",
			zap.String("url", ref.URL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage,
			fmt.Errorf("photo fetch returned status %d", resp.StatusCode))
	}

	data, err := readLimited(resp.Body, resp.ContentLength, l.validator.limit())
	if err != nil {
		return nil, err
	}
	return l.validator.Validate(data)
}

// S3Loader reads photos from a bucket, keyed by photo id.
type S3Loader struct {
	client    s3iface.S3API
	bucket    string
	validator Validator
	logger    *zap.Logger
}

// NewS3Loader creates a bucket-backed loader
func NewS3Loader(client s3iface.S3API, bucket string, maxBytes int64, logger *zap.Logger) *S3Loader {
	return &S3Loader{
		client:    client,
		bucket:    bucket,
		validator: Validator{MaxBytes: maxBytes},
		logger:    logger.Named("photo_s3"),
	}
}

// Load reads the object named by ref.ID and validates it
func (l *S3Loader) Load(ctx context.Context, ref mealphoto.PhotoRef) (*outbound.Photo, error) {
	out, err := l.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(ref.ID),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, outbound.NewAdapterError(mealphoto.CodeInvalidImage,
				fmt.Errorf("photo %s not found", ref.ID))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("get photo object: %w", err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body, aws.Int64Value(out.ContentLength), l.validator.limit())
	if err != nil {
		return nil, err
	}
	return l.validator.Validate(data)
}

func (v Validator) limit() int64 {
	if v.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return v.MaxBytes
}

// readLimited reads at most limit bytes, failing with IMAGE_TOO_LARGE when
// the declared or actual size exceeds it.
func readLimited(r io.Reader, declared, limit int64) ([]byte, error) {
	if declared > limit {
		return nil, outbound.NewAdapterError(mealphoto.CodeImageTooLarge,
			fmt.Errorf("photo is %d bytes, limit %d", declared, limit))
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, outbound.NewAdapterError(mealphoto.CodeImageTooLarge,
			fmt.Errorf("photo exceeds %d bytes", limit))
	}
	return data, nil
}
