package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id string) (*Reservation, error)
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)

	// Update writes r only if the stored state still equals prev, else it
	// returns ErrConcurrentUpdate.
	Update(ctx context.Context, r *Reservation, prev State) error

	// HasOverlap checks for a non-cancelled reservation of the listing that
	// conflicts with [start, end]. excludeID ignores one reservation.
	HasOverlap(ctx context.Context, listingID string, start, end time.Time, excludeID string) (bool, error)

	// PaymentIntentInUse reports whether any reservation other than
	// excludeID already records the payment intent.
	PaymentIntentInUse(ctx context.Context, paymentIntentID, excludeID string) (bool, error)

	// CompleteEnded moves confirmed reservations that ended before the given
	// instant to completed and returns their ids.
	CompleteEnded(ctx context.Context, before time.Time) ([]string, error)

	// ExpirePending cancels unpaid pending reservations created before the
	// given instant and returns their ids. Payment status stays pending.
	ExpirePending(ctx context.Context, createdBefore time.Time) ([]string, error)

	// WithListingLock runs fn while holding an exclusive lock on the
	// listing's calendar. fn must use the repository it is given.
	WithListingLock(ctx context.Context, listingID string, fn func(repo Repository) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRepository struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool, q: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var columns = []string{
	"id", "listing_id", "user_id", "start_date", "end_date", "guest_count",
	"total_amount", "status", "payment_status", "COALESCE(payment_intent_id, '')",
	"created_at", "updated_at",
}

func scan(row pgx.Row, r *Reservation, extra ...any) error {
	dest := []any{
		&r.ID, &r.ListingID, &r.UserID, &r.StartDate, &r.EndDate, &r.GuestCount,
		&r.TotalAmount, &r.Status, &r.PaymentStatus, &r.PaymentIntentID,
		&r.CreatedAt, &r.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *pgxRepository) WithListingLock(ctx context.Context, listingID string, fn func(repo Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Released on commit or rollback.
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", listingID); err != nil {
			return fmt.Errorf("lock listing calendar: %w", err)
		}
		return fn(&pgxRepository{pool: r.pool, q: tx, inTx: true})
	})
}

func (r *pgxRepository) Create(ctx context.Context, res *Reservation) error {
	query, args, err := psql.Insert("public.reservations").
		Columns("listing_id", "user_id", "start_date", "end_date", "guest_count",
			"total_amount", "status", "payment_status", "payment_intent_id").
		Values(res.ListingID, res.UserID, res.StartDate, res.EndDate, res.GuestCount,
			res.TotalAmount, res.Status, res.PaymentStatus, nullable(res.PaymentIntentID)).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create reservation query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return mapWriteError("create reservation", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	query, args, err := psql.Select(columns...).
		From("public.reservations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get reservation query failed: %w", err)
	}

	var res Reservation
	if err := scan(r.q.QueryRow(ctx, query, args...), &res); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation failed: %w", err)
	}
	return &res, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	query := psql.Select(append(columns, "count(*) OVER() AS total_count")...).
		From("public.reservations")

	if filter.ListingID != "" {
		query = query.Where(squirrel.Eq{"listing_id": filter.ListingID})
	}
	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	// Date range filtering (intersection logic)
	if filter.StartDate != nil {
		query = query.Where(squirrel.GtOrEq{"end_date": *filter.StartDate})
	}
	if filter.EndDate != nil {
		query = query.Where(squirrel.LtOrEq{"start_date": *filter.EndDate})
	}
	if filter.MinAmount != nil {
		query = query.Where(squirrel.GtOrEq{"total_amount": *filter.MinAmount})
	}
	if filter.MaxAmount != nil {
		query = query.Where(squirrel.LtOrEq{"total_amount": *filter.MaxAmount})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query = query.OrderBy("created_at DESC", "id").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list reservations query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations failed: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	var total int
	for rows.Next() {
		var res Reservation
		if err := scan(rows, &res, &total); err != nil {
			return nil, 0, fmt.Errorf("scan reservation failed: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list reservations failed: %w", err)
	}

	return out, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, res *Reservation, prev State) error {
	query, args, err := psql.Update("public.reservations").
		Set("start_date", res.StartDate).
		Set("end_date", res.EndDate).
		Set("guest_count", res.GuestCount).
		Set("total_amount", res.TotalAmount).
		Set("status", res.Status).
		Set("payment_status", res.PaymentStatus).
		Set("payment_intent_id", nullable(res.PaymentIntentID)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{
			"id":             res.ID,
			"status":         prev.Status,
			"payment_status": prev.PaymentStatus,
		}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update reservation query failed: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, res.ID); getErr != nil {
				return getErr
			}
			return ErrConcurrentUpdate
		}
		return mapWriteError("update reservation", err)
	}
	return nil
}

func (r *pgxRepository) HasOverlap(ctx context.Context, listingID string, start, end time.Time, excludeID string) (bool, error) {
	// Inclusive on both ends: NewStart <= ExistingEnd AND NewEnd >= ExistingStart
	subQuery := psql.Select("1").
		From("public.reservations").
		Where(squirrel.Eq{"listing_id": listingID}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Where(squirrel.LtOrEq{"start_date": end}).
		Where(squirrel.GtOrEq{"end_date": start})

	if excludeID != "" {
		subQuery = subQuery.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := subQuery.ToSql()
	if err != nil {
		return false, fmt.Errorf("build check overlap query failed: %w", err)
	}

	var exists bool
	if err := r.q.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check overlap failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) PaymentIntentInUse(ctx context.Context, paymentIntentID, excludeID string) (bool, error) {
	subQuery := psql.Select("1").
		From("public.reservations").
		Where(squirrel.Eq{"payment_intent_id": paymentIntentID})
	if excludeID != "" {
		subQuery = subQuery.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := subQuery.ToSql()
	if err != nil {
		return false, fmt.Errorf("build payment intent query failed: %w", err)
	}

	var exists bool
	if err := r.q.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment intent failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) CompleteEnded(ctx context.Context, before time.Time) ([]string, error) {
	query, args, err := psql.Update("public.reservations").
		Set("status", StatusCompleted).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"status": StatusConfirmed}).
		Where(squirrel.Lt{"end_date": before}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build complete reservations query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("complete reservations failed: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("complete reservations failed: %w", err)
	}
	return ids, nil
}

func (r *pgxRepository) ExpirePending(ctx context.Context, createdBefore time.Time) ([]string, error) {
	query, args, err := psql.Update("public.reservations").
		Set("status", StatusCancelled).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"status": StatusPending, "payment_status": PaymentPending}).
		Where(squirrel.Lt{"created_at": createdBefore}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expire reservations query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expire reservations failed: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("expire reservations failed: %w", err)
	}
	return ids, nil
}

func mapWriteError(op string, err error) error {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		switch e.Code {
		case pgerrcode.ExclusionViolation:
			return ErrDateConflict
		case pgerrcode.UniqueViolation:
			if e.ConstraintName == "reservations_payment_intent_key" {
				return ErrPaymentIntentInUse
			}
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
