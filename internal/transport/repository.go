package transport

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/db"
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
)

// TxRepository exposes transport row operations bound to an open transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Transport, error)
	Save(ctx context.Context, t Transport) error
}

// Tx bundles the transaction-scoped repositories the delivery confirmation
// needs. Everything runs over one pgx.Tx so the status change, the pool
// draw-down and the ledger postings commit or roll back together.
type Tx struct {
	Transports TxRepository
	Stock      stock.TxRepository
	AdminStock adminstock.TxRepository
	Sales      sales.TxReader
}

// Repository persists transports in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback with the composed transaction repositories.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Tx{
			Transports: &txRepository{tx: tx},
			Stock:      stock.NewTxRepository(tx),
			AdminStock: adminstock.NewTxRepository(tx),
			Sales:      sales.NewTxReader(tx),
		})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const transportColumns = `id, sale_id, franchise_id, status, transport_fee, transporter_name, company_name,
receipt_number, vehicle_number, tracking_number, notes, dispatched_at, delivered_at, stock_posted_at,
created_by, created_at, updated_at`

func scanTransport(row pgx.Row) (Transport, error) {
	var t Transport
	err := row.Scan(&t.ID, &t.SaleID, &t.FranchiseID, &t.Status, &t.TransportFee, &t.TransporterName,
		&t.CompanyName, &t.ReceiptNumber, &t.VehicleNumber, &t.TrackingNumber, &t.Notes,
		&t.DispatchedAt, &t.DeliveredAt, &t.StockPostedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transport{}, ErrTransportNotFound
		}
		return Transport{}, err
	}
	return t, nil
}

// GetForUpdate locks the transport row for the rest of the transaction so
// concurrent confirmations serialise on it.
func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Transport, error) {
	return scanTransport(r.tx.QueryRow(ctx, `SELECT `+transportColumns+` FROM transports WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) Save(ctx context.Context, t Transport) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transports SET
status=$2, transport_fee=$3, transporter_name=$4, company_name=$5, receipt_number=$6,
vehicle_number=$7, tracking_number=$8, notes=$9, dispatched_at=$10, delivered_at=$11,
stock_posted_at=$12, updated_at=NOW()
WHERE id=$1`,
		t.ID, string(t.Status), t.TransportFee, t.TransporterName, t.CompanyName, t.ReceiptNumber,
		t.VehicleNumber, t.TrackingNumber, t.Notes, t.DispatchedAt, t.DeliveredAt, t.StockPostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransportNotFound
	}
	return nil
}

// Create inserts a transport. A sale may carry at most one transport; the
// unique index on sale_id backs that rule.
func (r *Repository) Create(ctx context.Context, t Transport) (Transport, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO transports
(sale_id, franchise_id, status, transport_fee, transporter_name, company_name, receipt_number,
vehicle_number, tracking_number, notes, dispatched_at, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
RETURNING `+transportColumns,
		t.SaleID, t.FranchiseID, string(t.Status), t.TransportFee, t.TransporterName, t.CompanyName,
		t.ReceiptNumber, t.VehicleNumber, t.TrackingNumber, t.Notes, t.DispatchedAt, t.CreatedBy)
	created, err := scanTransport(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transport{}, ErrSaleAlreadyAssigned
		}
		return Transport{}, err
	}
	return created, nil
}

// Get loads one transport.
func (r *Repository) Get(ctx context.Context, id int64) (Transport, error) {
	return scanTransport(r.pool.QueryRow(ctx, `SELECT `+transportColumns+` FROM transports WHERE id=$1`, id))
}

// List returns transports, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Transport, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 0 OR franchise_id = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transports `+where, filter.FranchiseID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+transportColumns+` FROM transports `+where+`
ORDER BY id DESC
LIMIT $3 OFFSET $4`, filter.FranchiseID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Transport{}
	for rows.Next() {
		var t Transport
		if err := rows.Scan(&t.ID, &t.SaleID, &t.FranchiseID, &t.Status, &t.TransportFee, &t.TransporterName,
			&t.CompanyName, &t.ReceiptNumber, &t.VehicleNumber, &t.TrackingNumber, &t.Notes,
			&t.DispatchedAt, &t.DeliveredAt, &t.StockPostedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
