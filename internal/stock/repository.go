package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/db"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// TxRepository exposes the ledger operations that must run inside a
// database transaction. Other modules compose it over their own pgx.Tx via
// NewTxRepository so a delivery posting shares one transaction end to end.
type TxRepository interface {
	FindTransactionBySale(ctx context.Context, saleID int64) (Transaction, error)
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	InsertLedgerLine(ctx context.Context, line LedgerLine) (int64, error)
	AddToBalance(ctx context.Context, franchiseID, medicineID, delta int64) error
	AddToBatchBalance(ctx context.Context, franchiseID, medicineID int64, batchNumber string, expiryDate time.Time, delta int64) error
	GetBatchBalanceForUpdate(ctx context.Context, franchiseID, medicineID int64, batchNumber string, expiryDate time.Time) (BatchBalance, error)
	InsertRecall(ctx context.Context, rec Recall) (int64, error)
}

// Repository persists ledger data in PostgreSQL.
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

// NewTxRepository wraps an open transaction with ledger operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) FindTransactionBySale(ctx context.Context, saleID int64) (Transaction, error) {
	var txn Transaction
	err := r.tx.QueryRow(ctx, `SELECT id, code, kind, sale_id, notes, created_by, created_at
FROM stock_transactions WHERE sale_id=$1`, saleID).
		Scan(&txn.ID, &txn.Code, &txn.Kind, &txn.SaleID, &txn.Notes, &txn.CreatedBy, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return txn, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (code, kind, sale_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, txn.Code, string(txn.Kind), txn.SaleID, txn.Notes, txn.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLedgerLine(ctx context.Context, line LedgerLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_ledger (transaction_id, franchise_id, medicine_id, batch_number, expiry_date, qty_change, rate, amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		line.TransactionID, line.FranchiseID, line.MedicineID, line.BatchNumber, line.ExpiryDate, line.QtyChange, line.Rate, line.Amount).Scan(&id)
	return id, err
}

func (r *txRepository) AddToBalance(ctx context.Context, franchiseID, medicineID, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (franchise_id, medicine_id, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (franchise_id, medicine_id) DO UPDATE SET quantity=stock_balances.quantity+EXCLUDED.quantity, updated_at=NOW()`,
		franchiseID, medicineID, delta)
	return err
}

func (r *txRepository) AddToBatchBalance(ctx context.Context, franchiseID, medicineID int64, batchNumber string, expiryDate time.Time, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_batch_balances (franchise_id, medicine_id, batch_number, expiry_date, quantity, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (franchise_id, medicine_id, batch_number, expiry_date) DO UPDATE SET quantity=stock_batch_balances.quantity+EXCLUDED.quantity, updated_at=NOW()`,
		franchiseID, medicineID, batchNumber, expiryDate, delta)
	return err
}

func (r *txRepository) GetBatchBalanceForUpdate(ctx context.Context, franchiseID, medicineID int64, batchNumber string, expiryDate time.Time) (BatchBalance, error) {
	var bal BatchBalance
	err := r.tx.QueryRow(ctx, `SELECT franchise_id, medicine_id, batch_number, expiry_date, quantity, updated_at
FROM stock_batch_balances WHERE franchise_id=$1 AND medicine_id=$2 AND batch_number=$3 AND expiry_date=$4 FOR UPDATE`,
		franchiseID, medicineID, batchNumber, expiryDate).
		Scan(&bal.FranchiseID, &bal.MedicineID, &bal.BatchNumber, &bal.ExpiryDate, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BatchBalance{FranchiseID: franchiseID, MedicineID: medicineID, BatchNumber: batchNumber, ExpiryDate: expiryDate}, nil
		}
		return BatchBalance{}, err
	}
	return bal, nil
}

func (r *txRepository) InsertRecall(ctx context.Context, rec Recall) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_recalls (franchise_id, medicine_id, batch_number, expiry_date, quantity, recalled_at, stock_transaction_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		rec.FranchiseID, rec.MedicineID, rec.BatchNumber, rec.ExpiryDate, rec.Quantity, rec.RecalledAt, rec.StockTransactionID).Scan(&id)
	return id, err
}

// ClosingStock lists current balances joined with reference names.
func (r *Repository) ClosingStock(ctx context.Context, filter ClosingStockFilter) ([]ClosingStockRow, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 0 OR b.franchise_id = $1) AND ($2 = '' OR m.name ILIKE '%' || $2 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM stock_balances b
JOIN medicines m ON m.id = b.medicine_id
JOIN franchises f ON f.id = b.franchise_id `+where, filter.FranchiseID, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT b.franchise_id, f.name, b.medicine_id, m.name, b.quantity
FROM stock_balances b
JOIN medicines m ON m.id = b.medicine_id
JOIN franchises f ON f.id = b.franchise_id `+where+`
ORDER BY f.name, m.name
LIMIT $3 OFFSET $4`, filter.FranchiseID, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []ClosingStockRow{}
	for rows.Next() {
		var row ClosingStockRow
		if err := rows.Scan(&row.FranchiseID, &row.FranchiseName, &row.MedicineID, &row.MedicineName, &row.Quantity); err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListRecalls returns recall audit rows, newest first.
func (r *Repository) ListRecalls(ctx context.Context, filter RecallFilter) ([]RecallRow, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = 0 OR rc.franchise_id = $1) AND ($2 = 0 OR rc.medicine_id = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_recalls rc `+where, filter.FranchiseID, filter.MedicineID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT rc.id, rc.franchise_id, rc.medicine_id, rc.batch_number, rc.expiry_date, rc.quantity, rc.recalled_at, rc.stock_transaction_id, m.name, f.name
FROM stock_recalls rc
JOIN medicines m ON m.id = rc.medicine_id
JOIN franchises f ON f.id = rc.franchise_id `+where+`
ORDER BY rc.recalled_at DESC, rc.id DESC
LIMIT $3 OFFSET $4`, filter.FranchiseID, filter.MedicineID, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []RecallRow{}
	for rows.Next() {
		var row RecallRow
		if err := rows.Scan(&row.ID, &row.FranchiseID, &row.MedicineID, &row.BatchNumber, &row.ExpiryDate, &row.Quantity, &row.RecalledAt, &row.StockTransactionID, &row.MedicineName, &row.FranchiseName); err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// LedgerStat returns the ledger row count and quantity checksum.
func (r *Repository) LedgerStat(ctx context.Context) (LedgerStat, error) {
	var stat LedgerStat
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(qty_change), 0) FROM stock_ledger`).Scan(&stat.Rows, &stat.QtySum)
	return stat, err
}

// TryMaintenanceLock takes the rebuild advisory lock without blocking.
// The returned release function must be called once when ok is true.
func (r *Repository) TryMaintenanceLock(ctx context.Context) (func(context.Context) error, bool, error) {
	lock, ok, err := db.TryAdvisoryLock(ctx, r.pool, shared.StockRebuildAdvisoryKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Release, true, nil
}

// ReplaceBalances wipes both balance tables and recomputes them from the
// ledger inside one transaction. Grouped sums are read fully (cardinality is
// bounded by distinct balance keys, not ledger size) and written back in
// batches to bound round trips.
func (r *Repository) ReplaceBalances(ctx context.Context, batchSize int) (RebuildResult, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var result RebuildResult
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stock_balances`); err != nil {
			return fmt.Errorf("wipe balances: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stock_batch_balances`); err != nil {
			return fmt.Errorf("wipe batch balances: %w", err)
		}

		balances, err := groupedBalances(ctx, tx)
		if err != nil {
			return err
		}
		batchBalances, err := groupedBatchBalances(ctx, tx)
		if err != nil {
			return err
		}

		for start := 0; start < len(balances); start += batchSize {
			end := min(start+batchSize, len(balances))
			batch := &pgx.Batch{}
			for _, bal := range balances[start:end] {
				batch.Queue(`INSERT INTO stock_balances (franchise_id, medicine_id, quantity, updated_at) VALUES ($1,$2,$3,NOW())`,
					bal.FranchiseID, bal.MedicineID, bal.Quantity)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("write balances: %w", err)
			}
		}
		for start := 0; start < len(batchBalances); start += batchSize {
			end := min(start+batchSize, len(batchBalances))
			batch := &pgx.Batch{}
			for _, bal := range batchBalances[start:end] {
				batch.Queue(`INSERT INTO stock_batch_balances (franchise_id, medicine_id, batch_number, expiry_date, quantity, updated_at) VALUES ($1,$2,$3,$4,$5,NOW())`,
					bal.FranchiseID, bal.MedicineID, bal.BatchNumber, bal.ExpiryDate, bal.Quantity)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("write batch balances: %w", err)
			}
		}

		result.BalanceRows = len(balances)
		result.BatchBalanceRows = len(batchBalances)
		return nil
	})
	return result, err
}

func groupedBalances(ctx context.Context, tx pgx.Tx) ([]Balance, error) {
	rows, err := tx.Query(ctx, `SELECT franchise_id, medicine_id, SUM(qty_change)
FROM stock_ledger GROUP BY franchise_id, medicine_id HAVING SUM(qty_change) <> 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Balance
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.FranchiseID, &bal.MedicineID, &bal.Quantity); err != nil {
			return nil, err
		}
		result = append(result, bal)
	}
	return result, rows.Err()
}

func groupedBatchBalances(ctx context.Context, tx pgx.Tx) ([]BatchBalance, error) {
	rows, err := tx.Query(ctx, `SELECT franchise_id, medicine_id, batch_number, expiry_date, SUM(qty_change)
FROM stock_ledger
WHERE batch_number IS NOT NULL AND expiry_date IS NOT NULL
GROUP BY franchise_id, medicine_id, batch_number, expiry_date HAVING SUM(qty_change) <> 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BatchBalance
	for rows.Next() {
		var bal BatchBalance
		if err := rows.Scan(&bal.FranchiseID, &bal.MedicineID, &bal.BatchNumber, &bal.ExpiryDate, &bal.Quantity); err != nil {
			return nil, err
		}
		result = append(result, bal)
	}
	return result, rows.Err()
}

// BalanceDrift compares ledger sums against balance rows and returns every
// diverging (franchise, medicine) pair.
func (r *Repository) BalanceDrift(ctx context.Context) ([]DriftRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(l.franchise_id, b.franchise_id), COALESCE(l.medicine_id, b.medicine_id), COALESCE(l.qty, 0), COALESCE(b.quantity, 0)
FROM (SELECT franchise_id, medicine_id, SUM(qty_change) AS qty FROM stock_ledger GROUP BY franchise_id, medicine_id) l
FULL OUTER JOIN stock_balances b ON b.franchise_id = l.franchise_id AND b.medicine_id = l.medicine_id
WHERE COALESCE(l.qty, 0) <> COALESCE(b.quantity, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []DriftRow
	for rows.Next() {
		var row DriftRow
		if err := rows.Scan(&row.FranchiseID, &row.MedicineID, &row.LedgerQty, &row.BalanceQty); err != nil {
			return nil, err
		}
		drift = append(drift, row)
	}
	return drift, rows.Err()
}
