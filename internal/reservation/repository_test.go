package reservation

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/db"
)

// Set to a scratch database to run the store tests against Postgres.
const testDSNEnv = "RESERVATIONS_TEST_DSN"

type repoFactory func(t *testing.T) (repo Repository, userID string)

func TestMemoryRepository(t *testing.T) {
	runRepositoryTests(t, func(t *testing.T) (Repository, string) {
		return NewMemoryRepository(), uuid.NewString()
	})
}

func TestPgxRepository(t *testing.T) {
	pool := testPool(t)
	runRepositoryTests(t, func(t *testing.T) (Repository, string) {
		return NewPgxRepository(pool), testUser(t, pool)
	})

	t.Run("lock scope rolls back on error", func(t *testing.T) {
		ctx := context.Background()
		repo, userID := NewPgxRepository(pool), testUser(t, pool)
		listingID := "listing-" + uuid.NewString()
		boom := errors.New("boom")

		var createdID string
		err := repo.WithListingLock(ctx, listingID, func(tx Repository) error {
			res := pending(listingID, userID, date(3, 1, 0), date(3, 3, 0), "")
			if err := tx.Create(ctx, res); err != nil {
				return err
			}
			createdID = res.ID
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.NotEmpty(t, createdID)

		_, err = repo.GetByID(ctx, createdID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/0001_init.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func testUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	ctx := context.Background()

	var id string
	err := pool.QueryRow(ctx,
		"INSERT INTO public.users (email, password_hash) VALUES ($1, 'x') RETURNING id::text",
		uuid.NewString()+"@example.com",
	).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM public.reservations WHERE user_id = $1", id)
		_, _ = pool.Exec(ctx, "DELETE FROM public.users WHERE id = $1", id)
	})
	return id
}

func pending(listingID, userID string, start, end time.Time, intent string) *Reservation {
	return &Reservation{
		ListingID:       listingID,
		UserID:          userID,
		StartDate:       start,
		EndDate:         end,
		GuestCount:      2,
		TotalAmount:     330,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentIntentID: intent,
	}
}

func runRepositoryTests(t *testing.T, newRepo repoFactory) {
	ctx := context.Background()

	setup := func(t *testing.T) (Repository, string, string) {
		repo, userID := newRepo(t)
		return repo, userID, "listing-" + uuid.NewString()
	}

	t.Run("create and get", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		res := pending(listingID, userID, date(6, 1, 0), date(6, 4, 0), "pi_"+uuid.NewString())
		require.NoError(t, repo.Create(ctx, res))
		require.NotEmpty(t, res.ID)
		assert.False(t, res.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, res.ListingID, got.ListingID)
		assert.Equal(t, res.UserID, got.UserID)
		assert.True(t, res.StartDate.Equal(got.StartDate))
		assert.True(t, res.EndDate.Equal(got.EndDate))
		assert.Equal(t, int64(330), got.TotalAmount)
		assert.Equal(t, State{StatusPending, PaymentPending}, got.State())
		assert.Equal(t, res.PaymentIntentID, got.PaymentIntentID)

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("boundary instants overlap", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		res := pending(listingID, userID, date(6, 10, 0), date(6, 15, 0), "")
		require.NoError(t, repo.Create(ctx, res))

		for name, r := range map[string][2]time.Time{
			"touching at the end":   {date(6, 15, 0), date(6, 18, 0)},
			"touching at the start": {date(6, 5, 0), date(6, 10, 0)},
			"inside":                {date(6, 11, 0), date(6, 12, 0)},
		} {
			ok, err := repo.HasOverlap(ctx, listingID, r[0], r[1], "")
			require.NoError(t, err)
			assert.True(t, ok, name)
		}

		ok, err := repo.HasOverlap(ctx, listingID, date(6, 15, 1), date(6, 18, 0), "")
		require.NoError(t, err)
		assert.False(t, ok, "after checkout")

		ok, err = repo.HasOverlap(ctx, listingID, date(6, 12, 0), date(6, 18, 0), res.ID)
		require.NoError(t, err)
		assert.False(t, ok, "excluded reservation")

		ok, err = repo.HasOverlap(ctx, "other-"+listingID, date(6, 12, 0), date(6, 18, 0), "")
		require.NoError(t, err)
		assert.False(t, ok, "other listing")
	})

	t.Run("overlapping create is a date conflict", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		require.NoError(t, repo.Create(ctx, pending(listingID, userID, date(6, 10, 0), date(6, 15, 0), "")))

		err := repo.Create(ctx, pending(listingID, userID, date(6, 15, 0), date(6, 17, 0), ""))
		assert.ErrorIs(t, err, ErrDateConflict)
	})

	t.Run("cancelled stay frees the calendar", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		res := pending(listingID, userID, date(6, 10, 0), date(6, 15, 0), "")
		require.NoError(t, repo.Create(ctx, res))

		prev := res.State()
		res.Status = StatusCancelled
		require.NoError(t, repo.Update(ctx, res, prev))

		ok, err := repo.HasOverlap(ctx, listingID, date(6, 10, 0), date(6, 15, 0), "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, repo.Create(ctx, pending(listingID, userID, date(6, 10, 0), date(6, 15, 0), "")))
	})

	t.Run("update compares state before writing", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		res := pending(listingID, userID, date(6, 1, 0), date(6, 4, 0), "")
		require.NoError(t, repo.Create(ctx, res))

		confirmed := *res
		confirmed.Status = StatusConfirmed
		confirmed.PaymentStatus = PaymentCompleted
		require.NoError(t, repo.Update(ctx, &confirmed, res.State()))

		stale := *res
		stale.Status = StatusCancelled
		assert.ErrorIs(t, repo.Update(ctx, &stale, res.State()), ErrConcurrentUpdate)

		got, err := repo.GetByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, State{StatusConfirmed, PaymentCompleted}, got.State())

		missing := *res
		missing.ID = uuid.NewString()
		assert.ErrorIs(t, repo.Update(ctx, &missing, res.State()), ErrNotFound)
	})

	t.Run("rescheduling into another stay is a date conflict", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		require.NoError(t, repo.Create(ctx, pending(listingID, userID, date(6, 10, 0), date(6, 15, 0), "")))
		res := pending(listingID, userID, date(6, 20, 0), date(6, 22, 0), "")
		require.NoError(t, repo.Create(ctx, res))

		moved := *res
		moved.StartDate, moved.EndDate = date(6, 14, 0), date(6, 16, 0)
		assert.ErrorIs(t, repo.Update(ctx, &moved, res.State()), ErrDateConflict)
	})

	t.Run("payment intent belongs to one reservation", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		intent := "pi_" + uuid.NewString()
		first := pending(listingID, userID, date(6, 1, 0), date(6, 4, 0), intent)
		require.NoError(t, repo.Create(ctx, first))

		inUse, err := repo.PaymentIntentInUse(ctx, intent, "")
		require.NoError(t, err)
		assert.True(t, inUse)

		inUse, err = repo.PaymentIntentInUse(ctx, intent, first.ID)
		require.NoError(t, err)
		assert.False(t, inUse, "own intent")

		err = repo.Create(ctx, pending(listingID, userID, date(7, 1, 0), date(7, 4, 0), intent))
		assert.ErrorIs(t, err, ErrPaymentIntentInUse)

		second := pending(listingID, userID, date(8, 1, 0), date(8, 4, 0), "")
		require.NoError(t, repo.Create(ctx, second))
		claimed := *second
		claimed.PaymentIntentID = intent
		assert.ErrorIs(t, repo.Update(ctx, &claimed, second.State()), ErrPaymentIntentInUse)
	})

	t.Run("complete ended moves only confirmed stays", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		ended := pending(listingID, userID, date(1, 1, 0), date(1, 3, 0), "")
		require.NoError(t, repo.Create(ctx, ended))
		prev := ended.State()
		ended.Status, ended.PaymentStatus = StatusConfirmed, PaymentCompleted
		require.NoError(t, repo.Update(ctx, ended, prev))

		unpaid := pending(listingID, userID, date(1, 5, 0), date(1, 7, 0), "")
		require.NoError(t, repo.Create(ctx, unpaid))

		ids, err := repo.CompleteEnded(ctx, date(2, 1, 0))
		require.NoError(t, err)
		assert.Contains(t, ids, ended.ID)
		assert.NotContains(t, ids, unpaid.ID)

		got, err := repo.GetByID(ctx, ended.ID)
		require.NoError(t, err)
		assert.Equal(t, State{StatusCompleted, PaymentCompleted}, got.State())
	})

	t.Run("expire pending cancels unpaid holds", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		stale := pending(listingID, userID, date(9, 1, 0), date(9, 3, 0), "")
		require.NoError(t, repo.Create(ctx, stale))

		ids, err := repo.ExpirePending(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.NotContains(t, ids, stale.ID, "created after cutoff")

		ids, err = repo.ExpirePending(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Contains(t, ids, stale.ID)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, State{StatusCancelled, PaymentPending}, got.State())
	})

	t.Run("list filters by listing and pages", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		for d := 1; d <= 5; d++ {
			require.NoError(t, repo.Create(ctx, pending(listingID, userID, date(10, d*3, 0), date(10, d*3+1, 0), "")))
		}

		page, total, err := repo.List(ctx, Filter{ListingID: listingID, Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, page, 2)
	})

	t.Run("listing lock serializes writers", func(t *testing.T) {
		repo, userID, listingID := setup(t)
		var (
			wg        sync.WaitGroup
			inFlight  atomic.Int32
			overlaps  atomic.Int32
			succeeded atomic.Int32
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.WithListingLock(ctx, listingID, func(tx Repository) error {
					if inFlight.Add(1) > 1 {
						overlaps.Add(1)
					}
					defer inFlight.Add(-1)

					taken, err := tx.HasOverlap(ctx, listingID, date(11, 1, 0), date(11, 4, 0), "")
					if err != nil || taken {
						return ErrNotAvailable
					}
					time.Sleep(20 * time.Millisecond)
					return tx.Create(ctx, pending(listingID, userID, date(11, 1, 0), date(11, 4, 0), ""))
				})
				if err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, overlaps.Load())
		assert.Equal(t, int32(1), succeeded.Load())
	})
}
