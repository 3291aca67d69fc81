package vision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testPhoto = &outbound.Photo{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png", Format: "png"}

type staticLoader struct {
	photo *outbound.Photo
	err   error
}

func (l staticLoader) Load(context.Context, mealphoto.PhotoRef) (*outbound.Photo, error) {
	return l.photo, l.err
}

func strPtr(s string) *string { return &s }

func TestStubAdapter_Deterministic(t *testing.T) {
	stub := NewStubAdapter()
	ref := mealphoto.PhotoRef{ID: "photo-123"}

	first, err := stub.Predict(context.Background(), ref, nil)
	require.NoError(t, err)
	second, err := stub.Predict(context.Background(), ref, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, StubName, first.Model)

	var body struct {
		Items []stubItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(first.Payload, &body))
	assert.NotEmpty(t, body.Items)
}

func TestStubAdapter_Hints(t *testing.T) {
	stub := NewStubAdapter()
	ref := mealphoto.PhotoRef{URL: "https://example.com/a.jpg"}

	raw, err := stub.Predict(context.Background(), ref, strPtr("Sunday roast"))
	require.NoError(t, err)
	assert.Contains(t, string(raw.Payload), `"dish_title":"Sunday roast"`)

	raw, err = stub.Predict(context.Background(), ref, strPtr("Barcode 4006381333931"))
	require.NoError(t, err)
	assert.Contains(t, string(raw.Payload), `"barcode_status":"failed"`)
}

func TestStubAdapter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStubAdapter().Predict(ctx, mealphoto.PhotoRef{ID: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Timeout: time.Second}, zaptest.NewLogger(t))
}

func TestOpenAIBackend_Recognize(t *testing.T) {
	backend := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "data:image/png;base64,")
		assert.Contains(t, string(body), "curry night")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` +
			"```json\\n{\\\"items\\\":[{\\\"label\\\":\\\"rice\\\"}]}\\n```" +
			`"},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`))
	})

	adapter := NewRemoteAdapter(staticLoader{photo: testPhoto}, backend, zaptest.NewLogger(t))
	raw, err := adapter.Predict(context.Background(), mealphoto.PhotoRef{ID: "p"}, strPtr("curry night"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[{"label":"rice"}]}`, string(raw.Payload))
	assert.Equal(t, "remote:openai", adapter.Name())
}

func TestOpenAIBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   mealphoto.ErrorCode
	}{
		{http.StatusTooManyRequests, `{"error":"slow down"}`, mealphoto.CodeRateLimited},
		{http.StatusRequestEntityTooLarge, `{}`, mealphoto.CodeImageTooLarge},
		{http.StatusBadRequest, `{"error":"Invalid image data"}`, mealphoto.CodeInvalidImage},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			backend := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := backend.Recognize(context.Background(), testPhoto, nil)
			var aerr *outbound.AdapterError
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, tt.want, aerr.Code)
		})
	}

	backend := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := backend.Recognize(context.Background(), testPhoto, nil)
	require.Error(t, err)
	var aerr *outbound.AdapterError
	assert.False(t, errors.As(err, &aerr))
}

func TestRemoteAdapter_LoaderErrorPassesThrough(t *testing.T) {
	loadErr := outbound.NewAdapterError(mealphoto.CodeImageTooLarge, errors.New("too big"))
	backend := newOpenAIServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("backend must not be called")
	})
	adapter := NewRemoteAdapter(staticLoader{err: loadErr}, backend, zaptest.NewLogger(t))

	_, err := adapter.Predict(context.Background(), mealphoto.PhotoRef{ID: "p"}, nil)
	assert.ErrorIs(t, err, loadErr)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1} `))
}

type fakeRekognition struct {
	rekognitioniface.RekognitionAPI
	out     *rekognition.DetectLabelsOutput
	err     error
	pingErr error
}

func (f *fakeRekognition) DetectLabelsWithContext(aws.Context, *rekognition.DetectLabelsInput, ...request.Option) (*rekognition.DetectLabelsOutput, error) {
	return f.out, f.err
}

func (f *fakeRekognition) ListCollectionsWithContext(aws.Context, *rekognition.ListCollectionsInput, ...request.Option) (*rekognition.ListCollectionsOutput, error) {
	return &rekognition.ListCollectionsOutput{}, f.pingErr
}

func label(name string, confidence float64, parents ...string) *rekognition.Label {
	l := &rekognition.Label{Name: aws.String(name), Confidence: aws.Float64(confidence)}
	for _, p := range parents {
		l.Parents = append(l.Parents, &rekognition.Parent{Name: aws.String(p)})
	}
	return l
}

func TestRekognitionBackend_FiltersFoodLabels(t *testing.T) {
	client := &fakeRekognition{out: &rekognition.DetectLabelsOutput{Labels: []*rekognition.Label{
		label("Food", 99),
		label("Plate", 97, "Food"),
		label("Pizza", 91.5, "Food"),
		label("Table", 95, "Furniture"),
		label("Broccoli", 80, "Vegetable", "Food"),
	}}}
	backend := NewRekognitionBackend(client, 0.5, zaptest.NewLogger(t))

	payload, err := backend.Recognize(context.Background(), testPhoto, nil)
	require.NoError(t, err)

	var body struct {
		Items []rekognitionItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Pizza", body.Items[0].Label)
	assert.InDelta(t, 0.915, body.Items[0].Confidence, 1e-9)
	assert.Equal(t, "Broccoli", body.Items[1].Label)
}

func TestRekognitionBackend_ErrorClassification(t *testing.T) {
	tests := []struct {
		code string
		want mealphoto.ErrorCode
	}{
		{rekognition.ErrCodeThrottlingException, mealphoto.CodeRateLimited},
		{rekognition.ErrCodeImageTooLargeException, mealphoto.CodeImageTooLarge},
		{rekognition.ErrCodeInvalidImageFormatException, mealphoto.CodeUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			backend := NewRekognitionBackend(&fakeRekognition{err: awserr.New(tt.code, "boom", nil)}, 0.5, zaptest.NewLogger(t))
			_, err := backend.Recognize(context.Background(), testPhoto, nil)
			var aerr *outbound.AdapterError
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, tt.want, aerr.Code)
		})
	}
}

func TestSelect(t *testing.T) {
	logger := zaptest.NewLogger(t)
	healthy := NewRemoteAdapter(staticLoader{}, NewRekognitionBackend(&fakeRekognition{}, 0.5, logger), logger)
	down := NewRemoteAdapter(staticLoader{}, NewRekognitionBackend(&fakeRekognition{pingErr: errors.New("no creds")}, 0.5, logger), logger)

	assert.Equal(t, StubName, Select(context.Background(), ModeStub, healthy, time.Second, logger).Name())
	assert.Equal(t, "remote:rekognition", Select(context.Background(), ModeRemote, healthy, time.Second, logger).Name())
	assert.Equal(t, StubName, Select(context.Background(), ModeRemote, down, time.Second, logger).Name())
	assert.Equal(t, StubName, Select(context.Background(), ModeRemote, nil, time.Second, logger).Name())
	assert.True(t, strings.HasPrefix(healthy.Name(), "remote:"))
}
