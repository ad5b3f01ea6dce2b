//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cosmicwatch/neo-watch-service/internal/adapter/postgres"
	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startStore runs a disposable Postgres container and returns a migrated
// store connected to it.
func startStore(ctx context.Context, t *testing.T) *postgres.Store {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("neowatch_test"),
		tcpostgres.WithUsername("neowatch"),
		tcpostgres.WithPassword("neowatch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.Open(dsn, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.RunMigrations(ctx))
	return store
}

func testAsteroid(id int64, name string, hazardous bool) domain.Asteroid {
	return domain.Asteroid{
		ID:             id,
		NeoReferenceID: "ref",
		Name:           name,
		Hazardous:      hazardous,
		DiamKmMax:      0.5,
		DiamMMax:       500,
	}
}

func testApproach(asteroidID int64, date time.Time, risk float64) domain.ApproachEvent {
	return domain.ApproachEvent{
		AsteroidID:     asteroidID,
		ApproachDate:   date.UTC().Truncate(24 * time.Hour),
		VelocityKmph:   52_000,
		MissDistanceKm: 350_000,
		OrbitingBody:   "Earth",
		RiskScore:      risk,
	}
}

func mustInsert(ctx context.Context, t *testing.T, store *postgres.Store, asteroids []domain.Asteroid, approaches []domain.ApproachEvent) {
	t.Helper()
	require.NoError(t, store.WithinTx(ctx, func(tx pipeline.Tx) error {
		for _, a := range asteroids {
			if _, err := tx.InsertAsteroidIfAbsent(ctx, a); err != nil {
				return err
			}
		}
		for _, e := range approaches {
			if _, err := tx.InsertApproachIfAbsent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestInsertIfAbsent_SecondInsertReportsExisting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	asteroid := testAsteroid(3542519, "(2010 PK9)", true)
	approach := testApproach(3542519, time.Now().Add(24*time.Hour), 0.8125)

	require.NoError(t, store.WithinTx(ctx, func(tx pipeline.Tx) error {
		inserted, err := tx.InsertAsteroidIfAbsent(ctx, asteroid)
		require.NoError(t, err)
		assert.True(t, inserted, "first asteroid insert creates a row")

		inserted, err = tx.InsertAsteroidIfAbsent(ctx, asteroid)
		require.NoError(t, err)
		assert.False(t, inserted, "second asteroid insert is a no-op")

		inserted, err = tx.InsertApproachIfAbsent(ctx, approach)
		require.NoError(t, err)
		assert.True(t, inserted, "first approach insert creates a row")

		inserted, err = tx.InsertApproachIfAbsent(ctx, approach)
		require.NoError(t, err)
		assert.False(t, inserted, "same (asteroid, date, body) is a no-op")

		moon := approach
		moon.OrbitingBody = "Moon"
		inserted, err = tx.InsertApproachIfAbsent(ctx, moon)
		require.NoError(t, err)
		assert.True(t, inserted, "different orbiting body is a distinct approach")
		return nil
	}))
}

func TestWatchlist_ScopedToOwner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	mustInsert(ctx, t, store,
		[]domain.Asteroid{
			testAsteroid(1001, "(2019 GT3)", false),
			testAsteroid(1002, "465633 (2009 JR5)", true),
		},
		[]domain.ApproachEvent{
			testApproach(1001, time.Now().Add(48*time.Hour), 0.61),
		},
	)

	alice, err := store.CreateUser(ctx, domain.User{FullName: "Alice", Email: "alice@example.com", PasswordHash: "x", Role: "user", Verified: true})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, domain.User{FullName: "Bob", Email: "bob@example.com", PasswordHash: "x", Role: "user", Verified: true})
	require.NoError(t, err)

	for _, asteroidID := range []int64{1001, 1002} {
		added, err := store.AddToWatchlist(ctx, alice.ID, asteroidID)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := store.AddToWatchlist(ctx, bob.ID, 1002)
	require.NoError(t, err)
	assert.True(t, added)

	// Each user sees only their own entries.
	aliceList, err := store.Watchlist(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceList, 2)

	bobList, err := store.Watchlist(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, int64(1002), bobList[0].ID)

	// The next-approach join fills fields only when an upcoming approach exists.
	byID := map[int64]domain.WatchlistEntry{}
	for _, e := range aliceList {
		byID[e.ID] = e
	}
	require.NotNil(t, byID[1001].RiskScore)
	assert.InDelta(t, 0.61, *byID[1001].RiskScore, 0)
	assert.Nil(t, byID[1002].RiskScore)

	// Re-adding is reported as already present, not a new entry.
	added, err = store.AddToWatchlist(ctx, alice.ID, 1001)
	require.NoError(t, err)
	assert.False(t, added)
	aliceList, err = store.Watchlist(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, aliceList, 2)

	// Unknown asteroid is a not-found, removal of a missing entry too.
	_, err = store.AddToWatchlist(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.RemoveFromWatchlist(ctx, alice.ID, 1001))
	assert.ErrorIs(t, store.RemoveFromWatchlist(ctx, alice.ID, 1001), domain.ErrNotFound)

	aliceList, err = store.Watchlist(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, aliceList, 1)
}

func TestUpcomingHighRisk_WindowAndThreshold(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	now := time.Now()
	mustInsert(ctx, t, store,
		[]domain.Asteroid{
			testAsteroid(2001, "imminent high", true),
			testAsteroid(2002, "imminent at threshold", false),
			testAsteroid(2003, "imminent low", false),
			testAsteroid(2004, "distant high", true),
			testAsteroid(2005, "past high", true),
		},
		[]domain.ApproachEvent{
			testApproach(2001, now.Add(24*time.Hour), 0.8),
			testApproach(2002, now.Add(24*time.Hour), 0.5),
			testApproach(2003, now.Add(24*time.Hour), 0.2),
			testApproach(2004, now.Add(240*time.Hour), 0.9),
			testApproach(2005, now.Add(-24*time.Hour), 0.9),
		},
	)

	rows, err := store.UpcomingHighRisk(ctx, 48*time.Hour, 0.5)
	require.NoError(t, err)
	require.Len(t, rows, 1, "only future, in-window, strictly-above-threshold approaches qualify")
	assert.Equal(t, "imminent high", rows[0].Name)
	assert.InDelta(t, 0.8, rows[0].RiskScore, 0)
}

func TestRecentAsteroids_WindowOrderAndLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	now := time.Now()
	mustInsert(ctx, t, store,
		[]domain.Asteroid{
			testAsteroid(3001, "yesterday", false),
			testAsteroid(3002, "two days ago", false),
			testAsteroid(3003, "last month", false),
		},
		[]domain.ApproachEvent{
			testApproach(3001, now.Add(-24*time.Hour), 0.3),
			testApproach(3002, now.Add(-48*time.Hour), 0.4),
			testApproach(3003, now.Add(-30*24*time.Hour), 0.9),
		},
	)

	rows, err := store.RecentAsteroids(ctx, 50)
	require.NoError(t, err)
	require.Len(t, rows, 2, "approaches older than seven days are excluded")
	assert.Equal(t, "yesterday", rows[0].Name, "newest approach first")

	rows, err = store.RecentAsteroids(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "yesterday", rows[0].Name)
}

func TestCreateUser_DuplicateEmailRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	created, err := store.CreateUser(ctx, domain.User{FullName: "Ada", Email: "ada@example.com", PasswordHash: "h", Role: "user", Verified: true})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = store.CreateUser(ctx, domain.User{FullName: "Other Ada", Email: "ada@example.com", PasswordHash: "h2", Role: "user", Verified: true})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	fetched, err := store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	name, err := store.UserName(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
}

func TestRecentMessages_LastNChronological(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := startStore(ctx, t)

	for _, text := range []string{"first", "second", "third"} {
		_, err := store.InsertMessage(ctx, domain.ChatMessage{SenderName: "Guest", Text: text})
		require.NoError(t, err)
	}

	msgs, err := store.RecentMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Text)
	assert.Equal(t, "third", msgs[1].Text)
}
