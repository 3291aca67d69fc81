package gorm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alchemorsel/mealsnap/internal/domain/meal"
	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	gormrepo "github.com/alchemorsel/mealsnap/internal/infrastructure/persistence/gorm"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"github.com/alchemorsel/mealsnap/test/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	setup         func(t *testing.T) *testutils.TestDatabase
	db            *testutils.TestDatabase
	analyses      *gormrepo.MealPhotoRepository
	meals         *gormrepo.MealRepository
	confirmations *gormrepo.ConfirmationRepository
	now           time.Time
}

func (s *RepositoryTestSuite) SetupSuite() {
	s.db = s.setup(s.T())
	s.analyses = gormrepo.NewMealPhotoRepository(s.db.GormDB)
	s.meals = gormrepo.NewMealRepository(s.db.GormDB)
	s.confirmations = gormrepo.NewConfirmationRepository(s.db.GormDB, s.meals)
}

func (s *RepositoryTestSuite) SetupTest() {
	s.Require().NoError(s.db.TruncateAllTables())
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *RepositoryTestSuite) commit(seed int64, key string) *mealphoto.Analysis {
	a := testutils.NewAnalysisBuilder(seed).WithCreatedAt(s.now).WithFingerprint(key).WithDishTitle("Lunch").
		WithWarning(mealphoto.NewWarning(mealphoto.CodeEnrichmentFallback, "default used", true).ForItem(1)).
		MustBuild()
	stored, committed, err := s.analyses.CommitIfAbsent(context.Background(), key, a, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().True(committed)
	s.Require().Equal(a.ID(), stored.ID())
	return a
}

func (s *RepositoryTestSuite) TestRoundTrip() {
	a := s.commit(1, "k1")

	got, err := s.analyses.FindByID(context.Background(), a.ID())
	s.Require().NoError(err)
	testutils.NewAnalysisAssertions(s.T()).Consistent(got)
	s.Equal(a.Items(), got.Items())
	s.Equal(a.TotalCalories(), got.TotalCalories())
	s.Equal(a.Warnings(), got.Warnings())
	s.Equal(a.PhotoRef(), got.PhotoRef())
	s.Require().NotNil(got.DishTitle())
	s.Equal("Lunch", *got.DishTitle())
	s.True(a.CreatedAt().Equal(got.CreatedAt()))

	_, err = s.analyses.FindByID(context.Background(), uuid.New())
	s.ErrorIs(err, mealphoto.ErrAnalysisNotFound)
}

func (s *RepositoryTestSuite) TestFailedRoundTrip() {
	a := testutils.NewAnalysisBuilder(2).WithCreatedAt(s.now).Failed(mealphoto.CodeRateLimited).MustBuild()
	_, _, err := s.analyses.CommitIfAbsent(context.Background(), "kf", a, s.now.Add(time.Hour))
	s.Require().NoError(err)

	got, err := s.analyses.FindByID(context.Background(), a.ID())
	s.Require().NoError(err)
	testutils.NewAnalysisAssertions(s.T()).FailedWith(got, mealphoto.CodeRateLimited)
}

func (s *RepositoryTestSuite) TestCommitIfAbsent_ReturnsWinner() {
	first := s.commit(3, "k1")

	other := testutils.NewAnalysisBuilder(4).WithCreatedAt(s.now).MustBuild()
	stored, committed, err := s.analyses.CommitIfAbsent(context.Background(), "k1", other, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.False(committed)
	s.Equal(first.ID(), stored.ID())

	_, err = s.analyses.FindByID(context.Background(), other.ID())
	s.ErrorIs(err, mealphoto.ErrAnalysisNotFound, "loser is not persisted")
}

func (s *RepositoryTestSuite) TestCommitIfAbsent_Concurrent() {
	const n = 6
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := testutils.NewAnalysisBuilder(int64(100+i)).WithCreatedAt(s.now).MustBuild()
			stored, _, err := s.analyses.CommitIfAbsent(context.Background(), "k-race", a, s.now.Add(time.Hour))
			if s.NoError(err) {
				ids[i] = stored.ID()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		s.Equal(ids[0], id)
	}
}

func (s *RepositoryTestSuite) TestLookupAndPurge() {
	a := s.commit(5, "k1")

	id, ok, err := s.analyses.Lookup(context.Background(), "k1", s.now)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(a.ID(), id)

	_, ok, err = s.analyses.Lookup(context.Background(), "k1", s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.False(ok)

	n, err := s.analyses.PurgeExpired(context.Background(), s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.analyses.FindByID(context.Background(), a.ID())
	s.NoError(err, "purging keeps analyses")
}

func (s *RepositoryTestSuite) TestExpiredKeyIsReplaced() {
	s.commit(6, "k1")

	s.now = s.now.Add(2 * time.Hour)
	fresh := testutils.NewAnalysisBuilder(7).WithCreatedAt(s.now).MustBuild()
	stored, committed, err := s.analyses.CommitIfAbsent(context.Background(), "k1", fresh, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.True(committed)
	s.Equal(fresh.ID(), stored.ID())
}

func (s *RepositoryTestSuite) TestConfirmOnce() {
	ctx := context.Background()
	a := s.commit(8, "k1")

	entries := make([]*meal.Entry, 0, 2)
	for i, item := range a.Items() {
		e, err := meal.NewEntry(a.UserID(), a.ID(), i, "c1", meal.EntrySource{
			Label:            item.Label,
			DisplayName:      item.Name(),
			QuantityGrams:    item.QuantityGrams,
			Calories:         item.Calories,
			Per100g:          item.Nutrients,
			EnrichmentSource: item.EnrichmentSource,
		}, s.now)
		s.Require().NoError(err)
		entries = append(entries, e)
	}
	req := outbound.ConfirmationRequest{Key: "c1", AnalysisID: a.ID(), UserID: a.UserID(), Entries: entries, ConfirmedAt: s.now}

	first, err := s.confirmations.ConfirmOnce(ctx, req)
	s.Require().NoError(err)
	s.False(first.Replayed)
	s.Len(first.MealIDs, 2)

	second, err := s.confirmations.ConfirmOnce(ctx, req)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.MealIDs, second.MealIDs)

	stored, err := s.meals.FindByConfirmationKey(ctx, "c1")
	s.Require().NoError(err)
	s.Require().Len(stored, 2)
	s.Equal(first.MealIDs[0], stored[0].ID)
	s.Equal(a.Items()[0].Calories, stored[0].Calories)
	s.Equal(1, stored[1].ItemIndex)

	got, err := s.analyses.FindByID(ctx, a.ID())
	s.Require().NoError(err)
	s.NotNil(got.ConvertedAt())
}

func TestRepositories_SQLite(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{setup: testutils.SetupSQLiteDatabase})
}

func TestRepositories_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping postgres container tests in short mode")
	}
	suite.Run(t, &RepositoryTestSuite{setup: testutils.SetupPostgresDatabase})
}
