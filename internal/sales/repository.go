package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/db"
)

// TxReader reads sale documents inside an open transaction. The delivery
// posting path uses it so the sale snapshot it posts from belongs to the
// same transaction as the postings.
type TxReader interface {
	GetWithDetails(ctx context.Context, saleID int64) (SaleWithDetails, error)
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txReader struct {
	q queryer
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewTxReader wraps an open transaction with sale reads.
func NewTxReader(tx pgx.Tx) TxReader {
	return &txReader{q: tx}
}

func (r *txReader) GetWithDetails(ctx context.Context, saleID int64) (SaleWithDetails, error) {
	return getWithDetails(ctx, r.q, saleID)
}

func getWithDetails(ctx context.Context, q queryer, saleID int64) (SaleWithDetails, error) {
	var result SaleWithDetails
	err := q.QueryRow(ctx, `SELECT id, code, franchise_id, sale_date, notes, created_by, created_at
FROM sales WHERE id=$1`, saleID).
		Scan(&result.Sale.ID, &result.Sale.Code, &result.Sale.FranchiseID, &result.Sale.SaleDate,
			&result.Sale.Notes, &result.Sale.CreatedBy, &result.Sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleWithDetails{}, ErrSaleNotFound
		}
		return SaleWithDetails{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, sale_id, medicine_id, batch_number, expiry_date, quantity, rate, amount
FROM sale_details WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return SaleWithDetails{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.SaleID, &d.MedicineID, &d.BatchNumber, &d.ExpiryDate, &d.Quantity, &d.Rate, &d.Amount); err != nil {
			return SaleWithDetails{}, err
		}
		result.Details = append(result.Details, d)
	}
	return result, rows.Err()
}

// Create inserts the sale header and its details in one transaction.
func (r *Repository) Create(ctx context.Context, sale Sale, details []Detail) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO sales (code, franchise_id, sale_date, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
			sale.Code, sale.FranchiseID, sale.SaleDate, sale.Notes, sale.CreatedBy).Scan(&id)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, d := range details {
			batch.Queue(`INSERT INTO sale_details (sale_id, medicine_id, batch_number, expiry_date, quantity, rate, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, id, d.MedicineID, d.BatchNumber, d.ExpiryDate, d.Quantity, d.Rate, d.Amount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return id, err
}

// GetWithDetails loads one sale with its line items.
func (r *Repository) GetWithDetails(ctx context.Context, saleID int64) (SaleWithDetails, error) {
	return getWithDetails(ctx, r.pool, saleID)
}

// List returns sale headers, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Sale, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 0 OR franchise_id = $1) AND ($2 = '' OR code ILIKE '%' || $2 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where, filter.FranchiseID, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, code, franchise_id, sale_date, notes, created_by, created_at
FROM sales `+where+`
ORDER BY id DESC
LIMIT $3 OFFSET $4`, filter.FranchiseID, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.Code, &s.FranchiseID, &s.SaleDate, &s.Notes, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
