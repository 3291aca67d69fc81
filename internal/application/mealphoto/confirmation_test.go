package mealphoto

import (
	"context"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/memory"
	"github.com/alchemorsel/mealsnap/internal/ports/inbound"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	apperrors "github.com/alchemorsel/mealsnap/pkg/errors"
	"github.com/alchemorsel/mealsnap/test/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type confirmFixture struct {
	store  *memory.MealPhotoStore
	meals  *memory.MealStore
	events *testutils.RecordingPublisher
	svc    *ConfirmationService
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	meals := memory.NewMealStore()
	store := memory.NewMealPhotoStore(meals)
	events := &testutils.RecordingPublisher{}
	return &confirmFixture{
		store:  store,
		meals:  meals,
		events: events,
		svc:    NewConfirmationService(store, store, meals, outbound.NopMetrics{}, events, zaptest.NewLogger(t)),
	}
}

func (f *confirmFixture) commit(t *testing.T, a *mealphoto.Analysis) {
	t.Helper()
	_, committed, err := f.store.CommitIfAbsent(context.Background(), a.IdempotencyKey(), a, a.CreatedAt().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, committed)
}

func TestConfirm_CreatesEntriesOnce(t *testing.T) {
	f := newConfirmFixture(t)
	a := testutils.NewAnalysisBuilder(7).MustBuild()
	f.commit(t, a)

	cmd := inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{0, 1}}

	first, err := f.svc.Confirm(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	require.Len(t, first.CreatedMealIDs, 2)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, 0, first.Entries[0].ItemIndex)
	assert.Equal(t, 247.5, first.Entries[0].Calories)
	assert.Equal(t, "white rice", first.Entries[1].Label)

	second, err := f.svc.Confirm(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CreatedMealIDs, second.CreatedMealIDs)
	assert.Equal(t, 2, f.meals.Count())
	assert.Len(t, f.events.Named("mealphoto.confirmed"), 1)

	stored, err := f.store.FindByID(context.Background(), a.ID())
	require.NoError(t, err)
	assert.NotNil(t, stored.ConvertedAt())
}

func TestConfirm_KeyIgnoresOrderAndDuplicates(t *testing.T) {
	f := newConfirmFixture(t)
	a := testutils.NewAnalysisBuilder(8).MustBuild()
	f.commit(t, a)

	first, err := f.svc.Confirm(context.Background(), inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{1, 0}})
	require.NoError(t, err)
	second, err := f.svc.Confirm(context.Background(), inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{0, 1, 1}})
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.CreatedMealIDs, second.CreatedMealIDs)
	assert.Equal(t, ConfirmationKey(a.ID(), []int{0, 1}), ConfirmationKey(a.ID(), []int{1, 0, 0}))
}

func TestConfirm_DifferentSubsetsAreSeparate(t *testing.T) {
	f := newConfirmFixture(t)
	a := testutils.NewAnalysisBuilder(9).MustBuild()
	f.commit(t, a)

	_, err := f.svc.Confirm(context.Background(), inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{0}})
	require.NoError(t, err)
	res, err := f.svc.Confirm(context.Background(), inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{1}})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 2, f.meals.Count())
}

func TestConfirm_Rejections(t *testing.T) {
	f := newConfirmFixture(t)
	completed := testutils.NewAnalysisBuilder(10).MustBuild()
	failed := testutils.NewAnalysisBuilder(11).Failed(mealphoto.CodeParseEmpty).MustBuild()
	f.commit(t, completed)
	f.commit(t, failed)

	tests := []struct {
		name string
		cmd  inbound.ConfirmCommand
		want apperrors.ErrorCode
	}{
		{"IndexOutOfRange", inbound.ConfirmCommand{AnalysisID: completed.ID(), UserID: completed.UserID(), AcceptedIndexes: []int{0, 5}}, apperrors.CodeInvalidIndex},
		{"NegativeIndex", inbound.ConfirmCommand{AnalysisID: completed.ID(), UserID: completed.UserID(), AcceptedIndexes: []int{-1}}, apperrors.CodeInvalidIndex},
		{"NoIndexes", inbound.ConfirmCommand{AnalysisID: completed.ID(), UserID: completed.UserID(), AcceptedIndexes: nil}, apperrors.CodeInvalidIndex},
		{"FailedAnalysis", inbound.ConfirmCommand{AnalysisID: failed.ID(), UserID: failed.UserID(), AcceptedIndexes: []int{0}}, apperrors.CodeAnalysisNotConfirmable},
		{"OtherUser", inbound.ConfirmCommand{AnalysisID: completed.ID(), UserID: uuid.New(), AcceptedIndexes: []int{0}}, apperrors.CodeAnalysisNotConfirmable},
		{"UnknownAnalysis", inbound.ConfirmCommand{AnalysisID: uuid.New(), UserID: completed.UserID(), AcceptedIndexes: []int{0}}, apperrors.CodeAnalysisNotConfirmable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Confirm(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.GetCode(err))
		})
	}
	assert.Zero(t, f.meals.Count(), "rejected confirmations create nothing")
}

func TestMealPhotoService_Get(t *testing.T) {
	f := newConfirmFixture(t)
	a := testutils.NewAnalysisBuilder(12).WithDishTitle("Lunch").MustBuild()
	f.commit(t, a)

	svc := NewMealPhotoService(nil, f.svc, f.store, zaptest.NewLogger(t))

	dto, err := svc.GetMealPhotoAnalysis(context.Background(), a.ID(), a.UserID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), dto.ID)
	assert.Len(t, dto.Items, 2)
	assert.Equal(t, 1, dto.Items[1].Index)

	_, err = svc.GetMealPhotoAnalysis(context.Background(), a.ID(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.CodeAnalysisNotFound))

	_, err = svc.GetMealPhotoAnalysis(context.Background(), uuid.New(), a.UserID())
	assert.True(t, apperrors.Is(err, apperrors.CodeAnalysisNotFound))
}

func TestMealPhotoService_Confirm(t *testing.T) {
	f := newConfirmFixture(t)
	a := testutils.NewAnalysisBuilder(13).MustBuild()
	f.commit(t, a)

	svc := NewMealPhotoService(nil, f.svc, f.store, zaptest.NewLogger(t))
	dto, err := svc.ConfirmMealPhoto(context.Background(), inbound.ConfirmCommand{AnalysisID: a.ID(), UserID: a.UserID(), AcceptedIndexes: []int{1}})
	require.NoError(t, err)
	require.Len(t, dto.Entries, 1)
	assert.Equal(t, dto.CreatedMealIDs[0], dto.Entries[0].ID)
	assert.Equal(t, "white rice", dto.Entries[0].Label)
}

func TestIdempotencyJanitor_PurgeOnce(t *testing.T) {
	store := memory.NewMealPhotoStore(memory.NewMealStore())
	base := time.Now().UTC()
	old := testutils.NewAnalysisBuilder(14).WithCreatedAt(base.Add(-2 * time.Hour)).WithFingerprint("old").MustBuild()
	fresh := testutils.NewAnalysisBuilder(15).WithFingerprint("fresh").MustBuild()

	_, _, err := store.CommitIfAbsent(context.Background(), "old", old, base.Add(-time.Hour))
	require.NoError(t, err)
	_, _, err = store.CommitIfAbsent(context.Background(), "fresh", fresh, base.Add(time.Hour))
	require.NoError(t, err)

	j := NewIdempotencyJanitor(store, time.Minute, zaptest.NewLogger(t))
	n, err := j.PurgeOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := store.Lookup(context.Background(), "fresh", base)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.FindByID(context.Background(), old.ID())
	assert.NoError(t, err, "purging keeps analyses")
}

func TestIdempotencyJanitor_RunStopsOnCancel(t *testing.T) {
	j := NewIdempotencyJanitor(memory.NewMealPhotoStore(memory.NewMealStore()), 5*time.Millisecond, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
