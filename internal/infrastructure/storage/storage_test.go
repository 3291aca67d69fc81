package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func webpBytes(chunk string) []byte {
	b := []byte("RIFF\x24\x00\x00\x00WEBP")
	b = append(b, chunk...)
	return append(b, make([]byte, 24)...)
}

func codeOf(t *testing.T, err error) mealphoto.ErrorCode {
	t.Helper()
	var aerr *outbound.AdapterError
	require.True(t, errors.As(err, &aerr), "expected AdapterError, got %v", err)
	return aerr.Code
}

func TestValidator(t *testing.T) {
	valid := pngBytes(t, 4, 3)

	t.Run("AcceptsPNG", func(t *testing.T) {
		photo, err := Validator{}.Validate(valid)
		require.NoError(t, err)
		assert.Equal(t, "png", photo.Format)
		assert.Equal(t, "image/png", photo.ContentType)
		assert.Equal(t, 4, photo.Width)
		assert.Equal(t, 3, photo.Height)
	})

	t.Run("AcceptsWebP", func(t *testing.T) {
		photo, err := Validator{}.Validate(webpBytes("VP8 "))
		require.NoError(t, err)
		assert.Equal(t, "webp", photo.Format)
	})

	tests := []struct {
		name string
		data []byte
		max  int64
		want mealphoto.ErrorCode
	}{
		{"TooLarge", valid, 10, mealphoto.CodeImageTooLarge},
		{"Empty", nil, 0, mealphoto.CodeInvalidImage},
		{"Gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"), 0, mealphoto.CodeUnsupportedFormat},
		{"Text", []byte("hello, not a picture"), 0, mealphoto.CodeInvalidImage},
		{"TruncatedPNG", valid[:20], 0, mealphoto.CodeInvalidImage},
		{"WebPWithoutImageChunk", webpBytes("JUNK"), 0, mealphoto.CodeInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validator{MaxBytes: tt.max}.Validate(tt.data)
			require.Error(t, err)
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}
}

func TestHTTPLoader(t *testing.T) {
	photo := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(photo)
		case "/big.png":
			_, _ = w.Write(bytes.Repeat([]byte{0xff}, 4096))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewHTTPLoader(time.Second, 1024, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := loader.Load(ctx, mealphoto.PhotoRef{URL: srv.URL + "/ok.png"})
	require.NoError(t, err)
	assert.Equal(t, photo, got.Data)

	_, err = loader.Load(ctx, mealphoto.PhotoRef{URL: srv.URL + "/big.png"})
	assert.Equal(t, mealphoto.CodeImageTooLarge, codeOf(t, err))

	_, err = loader.Load(ctx, mealphoto.PhotoRef{URL: srv.URL + "/missing.png"})
	assert.Equal(t, mealphoto.CodeInvalidImage, codeOf(t, err))
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	lastKey string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.lastKey = aws.StringValue(in.Key)
	data, ok := f.objects[f.lastKey]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func TestLoader_RoutesByReference(t *testing.T) {
	photo := pngBytes(t, 3, 3)
	client := &fakeS3{objects: map[string][]byte{"photos/abc.png": photo}}
	logger := zaptest.NewLogger(t)

	loader := NewLoader(NewS3Loader(client, "meal-photos", 0, logger), NewHTTPLoader(time.Second, 0, logger))

	got, err := loader.Load(context.Background(), mealphoto.PhotoRef{ID: "photos/abc.png"})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Width)
	assert.Equal(t, "photos/abc.png", client.lastKey)

	_, err = loader.Load(context.Background(), mealphoto.PhotoRef{ID: "photos/missing.png"})
	assert.Equal(t, mealphoto.CodeInvalidImage, codeOf(t, err))
}

func TestLoader_IDWithoutBucket(t *testing.T) {
	loader := NewLoader(nil, NewHTTPLoader(time.Second, 0, zaptest.NewLogger(t)))
	_, err := loader.Load(context.Background(), mealphoto.PhotoRef{ID: "abc"})
	assert.Equal(t, mealphoto.CodeInvalidImage, codeOf(t, err))
}
