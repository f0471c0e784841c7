package adminstock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/db"
)

// TxRepository exposes pool mutations bound to an open transaction. The
// delivery posting path composes it with the ledger repositories so the
// draw-down and the franchise postings commit together.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, medicineID int64) (Balance, error)
	AddToBalance(ctx context.Context, medicineID, delta int64) error
	GetBatch(ctx context.Context, medicineID int64, batchNumber string) (BatchBalance, bool, error)
	AddToBatch(ctx context.Context, medicineID int64, batchNumber string, expiryDate time.Time, delta int64) error
}

// Repository persists the admin stock pool in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with pool operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, medicineID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT medicine_id, quantity, updated_at
FROM admin_stock_balances WHERE medicine_id=$1 FOR UPDATE`, medicineID).
		Scan(&bal.MedicineID, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{MedicineID: medicineID}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) AddToBalance(ctx context.Context, medicineID, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO admin_stock_balances (medicine_id, quantity, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (medicine_id) DO UPDATE SET quantity=admin_stock_balances.quantity+EXCLUDED.quantity, updated_at=NOW()`,
		medicineID, delta)
	return err
}

func (r *txRepository) GetBatch(ctx context.Context, medicineID int64, batchNumber string) (BatchBalance, bool, error) {
	var bal BatchBalance
	err := r.tx.QueryRow(ctx, `SELECT medicine_id, batch_number, expiry_date, quantity, updated_at
FROM admin_stock_batch_balances WHERE medicine_id=$1 AND batch_number=$2 FOR UPDATE`, medicineID, batchNumber).
		Scan(&bal.MedicineID, &bal.BatchNumber, &bal.ExpiryDate, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BatchBalance{}, false, nil
		}
		return BatchBalance{}, false, err
	}
	return bal, true, nil
}

func (r *txRepository) AddToBatch(ctx context.Context, medicineID int64, batchNumber string, expiryDate time.Time, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO admin_stock_batch_balances (medicine_id, batch_number, expiry_date, quantity, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (medicine_id, batch_number) DO UPDATE SET quantity=admin_stock_batch_balances.quantity+EXCLUDED.quantity, updated_at=NOW()`,
		medicineID, batchNumber, expiryDate, delta)
	return err
}

// ListRows lists batch rows with the per-medicine pool total alongside.
func (r *Repository) ListRows(ctx context.Context, filter RowFilter) ([]Row, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 0 OR bb.medicine_id = $1) AND ($2 = '' OR m.name ILIKE '%' || $2 || '%' OR bb.batch_number ILIKE '%' || $2 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM admin_stock_batch_balances bb
JOIN medicines m ON m.id = bb.medicine_id `+where, filter.MedicineID, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT bb.medicine_id, m.name, bb.batch_number, bb.expiry_date, bb.quantity, COALESCE(b.quantity, 0)
FROM admin_stock_batch_balances bb
JOIN medicines m ON m.id = bb.medicine_id
LEFT JOIN admin_stock_balances b ON b.medicine_id = bb.medicine_id `+where+`
ORDER BY m.name, bb.expiry_date, bb.batch_number
LIMIT $3 OFFSET $4`, filter.MedicineID, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Row{}
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.MedicineID, &row.MedicineName, &row.BatchNumber, &row.ExpiryDate, &row.Quantity, &row.TotalForMed); err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
