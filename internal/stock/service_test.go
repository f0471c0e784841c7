package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	transactions  []Transaction
	ledger        []LedgerLine
	balances      map[string]int64
	batchBalances map[string]int64
	recalls       []Recall
	nextID        int64

	lockHeld      bool
	duringReplace func(*memoryRepo)
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances:      make(map[string]int64),
		batchBalances: make(map[string]int64),
	}
}

func balKey(franchiseID, medicineID int64) string {
	return fmt.Sprintf("%d:%d", franchiseID, medicineID)
}

func batchKey(franchiseID, medicineID int64, batch string, expiry time.Time) string {
	return fmt.Sprintf("%d:%d:%s:%s", franchiseID, medicineID, batch, expiry.Format("2006-01-02"))
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ClosingStock(ctx context.Context, filter ClosingStockFilter) ([]ClosingStockRow, int, error) {
	var rows []ClosingStockRow
	for key, qty := range r.balances {
		var fid, mid int64
		fmt.Sscanf(key, "%d:%d", &fid, &mid)
		if filter.FranchiseID != 0 && fid != filter.FranchiseID {
			continue
		}
		rows = append(rows, ClosingStockRow{FranchiseID: fid, MedicineID: mid, Quantity: qty})
	}
	return rows, len(rows), nil
}

func (r *memoryRepo) ListRecalls(ctx context.Context, filter RecallFilter) ([]RecallRow, int, error) {
	var rows []RecallRow
	for _, rec := range r.recalls {
		if filter.FranchiseID != 0 && rec.FranchiseID != filter.FranchiseID {
			continue
		}
		rows = append(rows, RecallRow{Recall: rec})
	}
	return rows, len(rows), nil
}

func (r *memoryRepo) LedgerStat(ctx context.Context) (LedgerStat, error) {
	var stat LedgerStat
	for _, line := range r.ledger {
		stat.Rows++
		stat.QtySum += line.QtyChange
	}
	return stat, nil
}

func (r *memoryRepo) TryMaintenanceLock(ctx context.Context) (func(context.Context) error, bool, error) {
	if r.lockHeld {
		return nil, false, nil
	}
	r.lockHeld = true
	return func(context.Context) error {
		r.lockHeld = false
		return nil
	}, true, nil
}

func (r *memoryRepo) ReplaceBalances(ctx context.Context, batchSize int) (RebuildResult, error) {
	r.balances = make(map[string]int64)
	r.batchBalances = make(map[string]int64)
	for _, line := range r.ledger {
		r.balances[balKey(line.FranchiseID, line.MedicineID)] += line.QtyChange
		if line.BatchNumber != nil && line.ExpiryDate != nil {
			r.batchBalances[batchKey(line.FranchiseID, line.MedicineID, *line.BatchNumber, *line.ExpiryDate)] += line.QtyChange
		}
	}
	for key, qty := range r.balances {
		if qty == 0 {
			delete(r.balances, key)
		}
	}
	for key, qty := range r.batchBalances {
		if qty == 0 {
			delete(r.batchBalances, key)
		}
	}
	if r.duringReplace != nil {
		r.duringReplace(r)
	}
	return RebuildResult{BalanceRows: len(r.balances), BatchBalanceRows: len(r.batchBalances)}, nil
}

func (r *memoryRepo) BalanceDrift(ctx context.Context) ([]DriftRow, error) {
	sums := make(map[string]int64)
	for _, line := range r.ledger {
		sums[balKey(line.FranchiseID, line.MedicineID)] += line.QtyChange
	}
	keys := make(map[string]struct{})
	for key := range sums {
		keys[key] = struct{}{}
	}
	for key := range r.balances {
		keys[key] = struct{}{}
	}
	var drift []DriftRow
	for key := range keys {
		if sums[key] == r.balances[key] {
			continue
		}
		var fid, mid int64
		fmt.Sscanf(key, "%d:%d", &fid, &mid)
		drift = append(drift, DriftRow{FranchiseID: fid, MedicineID: mid, LedgerQty: sums[key], BalanceQty: r.balances[key]})
	}
	return drift, nil
}

func (tx *memoryTx) FindTransactionBySale(ctx context.Context, saleID int64) (Transaction, error) {
	for _, txn := range tx.repo.transactions {
		if txn.SaleID != nil && *txn.SaleID == saleID {
			return txn, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	tx.repo.nextID++
	txn.ID = tx.repo.nextID
	txn.CreatedAt = time.Now()
	tx.repo.transactions = append(tx.repo.transactions, txn)
	return txn.ID, nil
}

func (tx *memoryTx) InsertLedgerLine(ctx context.Context, line LedgerLine) (int64, error) {
	tx.repo.nextID++
	line.ID = tx.repo.nextID
	tx.repo.ledger = append(tx.repo.ledger, line)
	return line.ID, nil
}

func (tx *memoryTx) AddToBalance(ctx context.Context, franchiseID, medicineID, delta int64) error {
	tx.repo.balances[balKey(franchiseID, medicineID)] += delta
	return nil
}

func (tx *memoryTx) AddToBatchBalance(ctx context.Context, franchiseID, medicineID int64, batch string, expiry time.Time, delta int64) error {
	tx.repo.batchBalances[batchKey(franchiseID, medicineID, batch, expiry)] += delta
	return nil
}

func (tx *memoryTx) GetBatchBalanceForUpdate(ctx context.Context, franchiseID, medicineID int64, batch string, expiry time.Time) (BatchBalance, error) {
	qty := tx.repo.batchBalances[batchKey(franchiseID, medicineID, batch, expiry)]
	return BatchBalance{FranchiseID: franchiseID, MedicineID: medicineID, BatchNumber: batch, ExpiryDate: expiry, Quantity: qty}, nil
}

func (tx *memoryTx) InsertRecall(ctx context.Context, rec Recall) (int64, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.repo.recalls = append(tx.repo.recalls, rec)
	return rec.ID, nil
}

func seedDelivery(t *testing.T, repo *memoryRepo, franchiseID, medicineID, qty int64, batch string, expiry time.Time) {
	t.Helper()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		txnID, err := tx.InsertTransaction(ctx, Transaction{Code: "TEST", Kind: KindDelivery, CreatedBy: 1})
		if err != nil {
			return err
		}
		return PostLines(ctx, tx, txnID, []LedgerLine{{
			FranchiseID: franchiseID,
			MedicineID:  medicineID,
			BatchNumber: &batch,
			ExpiryDate:  &expiry,
			QtyChange:   qty,
		}})
	})
	require.NoError(t, err)
}

func TestPostLinesUpdatesProjections(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	expiry := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := "B100"

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txnID, err := tx.InsertTransaction(ctx, Transaction{Code: "T1", Kind: KindDelivery, CreatedBy: 1})
		require.NoError(t, err)
		return PostLines(ctx, tx, txnID, []LedgerLine{
			{FranchiseID: 1, MedicineID: 10, BatchNumber: &batch, ExpiryDate: &expiry, QtyChange: 25},
			{FranchiseID: 1, MedicineID: 11, QtyChange: 5},
		})
	})
	require.NoError(t, err)

	require.Equal(t, int64(25), repo.balances[balKey(1, 10)])
	require.Equal(t, int64(5), repo.balances[balKey(1, 11)])
	require.Equal(t, int64(25), repo.batchBalances[batchKey(1, 10, batch, expiry)])
	// line without batch identifiers must not create a batch balance
	require.Len(t, repo.batchBalances, 1)
	require.Len(t, repo.ledger, 2)
}

func TestPostLinesRejectsZeroQuantity(t *testing.T) {
	repo := newMemoryRepo()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return PostLines(ctx, tx, 1, []LedgerLine{{FranchiseID: 1, MedicineID: 1, QtyChange: 0}})
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRecordRecallPostsNegativeLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	expiry := time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 2, 7, 10, "B200", expiry)

	rec, err := svc.RecordRecall(context.Background(), RecallInput{
		FranchiseID: 2,
		MedicineID:  7,
		BatchNumber: "B200",
		ExpiryDate:  expiry,
		Quantity:    4,
		ActorID:     99,
	})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	require.Equal(t, int64(4), rec.Quantity)

	require.Equal(t, int64(6), repo.balances[balKey(2, 7)])
	require.Equal(t, int64(6), repo.batchBalances[batchKey(2, 7, "B200", expiry)])

	last := repo.ledger[len(repo.ledger)-1]
	require.Equal(t, int64(-4), last.QtyChange)
	require.Equal(t, "B200", *last.BatchNumber)

	lastTxn := repo.transactions[len(repo.transactions)-1]
	require.Equal(t, KindRecall, lastTxn.Kind)
	require.Equal(t, int64(99), lastTxn.CreatedBy)
	require.Len(t, repo.recalls, 1)
}

func TestRecordRecallInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	expiry := time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 2, 7, 3, "B200", expiry)

	_, err := svc.RecordRecall(context.Background(), RecallInput{
		FranchiseID: 2,
		MedicineID:  7,
		BatchNumber: "B200",
		ExpiryDate:  expiry,
		Quantity:    4,
		ActorID:     99,
	})
	require.ErrorIs(t, err, ErrInsufficientBatchStock)

	// nothing may change when the check fails
	require.Equal(t, int64(3), repo.balances[balKey(2, 7)])
	require.Empty(t, repo.recalls)
	require.Len(t, repo.ledger, 1)
}

func TestRecordRecallRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	_, err := svc.RecordRecall(context.Background(), RecallInput{FranchiseID: 1, MedicineID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRebuildBalancesMatchesLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	expiry := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 1, 10, 20, "A1", expiry)
	seedDelivery(t, repo, 1, 10, -20, "A1", expiry)
	seedDelivery(t, repo, 3, 11, 7, "A2", expiry)

	// corrupt the projections, the rebuild must repair them
	repo.balances[balKey(9, 9)] = 42
	repo.balances[balKey(3, 11)] = 1

	result, err := svc.RebuildBalances(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.BalanceRows)
	require.Equal(t, 1, result.BatchBalanceRows)

	require.Equal(t, int64(7), repo.balances[balKey(3, 11)])
	_, ok := repo.balances[balKey(9, 9)]
	require.False(t, ok)
	// groups summing to zero are dropped, not written as zero rows
	_, ok = repo.balances[balKey(1, 10)]
	require.False(t, ok)

	// a second rebuild over an unchanged ledger is a no-op
	again, err := svc.RebuildBalances(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, result, again)
	require.False(t, repo.lockHeld)
}

func TestRebuildBalancesLocked(t *testing.T) {
	repo := newMemoryRepo()
	repo.lockHeld = true
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RebuildBalances(context.Background(), 1)
	require.ErrorIs(t, err, ErrRebuildLocked)
}

func TestRebuildBalancesDetectsConcurrentWrites(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	expiry := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 1, 10, 20, "A1", expiry)

	repo.duringReplace = func(r *memoryRepo) {
		r.duringReplace = nil
		r.ledger = append(r.ledger, LedgerLine{FranchiseID: 5, MedicineID: 5, QtyChange: 1})
	}

	_, err := svc.RebuildBalances(context.Background(), 1)
	require.ErrorIs(t, err, ErrLedgerChangedDuringRebuild)
	require.False(t, repo.lockHeld)
}

func TestIntegrityScanReportsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	expiry := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, 1, 10, 20, "A1", expiry)

	drift, err := svc.IntegrityScan(context.Background())
	require.NoError(t, err)
	require.Empty(t, drift)

	repo.balances[balKey(1, 10)] = 19
	drift, err = svc.IntegrityScan(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.Equal(t, int64(20), drift[0].LedgerQty)
	require.Equal(t, int64(19), drift[0].BalanceQty)
}
