package adminstock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	balances map[int64]int64
	batches  map[string]BatchBalance
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances: make(map[int64]int64),
		batches:  make(map[string]BatchBalance),
	}
}

func batchKey(medicineID int64, batch string) string {
	return fmt.Sprintf("%d:%s", medicineID, batch)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListRows(ctx context.Context, filter RowFilter) ([]Row, int, error) {
	var rows []Row
	for _, b := range r.batches {
		rows = append(rows, Row{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Quantity:    b.Quantity,
			TotalForMed: r.balances[b.MedicineID],
		})
	}
	return rows, len(rows), nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, medicineID int64) (Balance, error) {
	return Balance{MedicineID: medicineID, Quantity: tx.repo.balances[medicineID]}, nil
}

func (tx *memoryTx) AddToBalance(ctx context.Context, medicineID, delta int64) error {
	tx.repo.balances[medicineID] += delta
	return nil
}

func (tx *memoryTx) GetBatch(ctx context.Context, medicineID int64, batch string) (BatchBalance, bool, error) {
	b, ok := tx.repo.batches[batchKey(medicineID, batch)]
	return b, ok, nil
}

func (tx *memoryTx) AddToBatch(ctx context.Context, medicineID int64, batch string, expiry time.Time, delta int64) error {
	key := batchKey(medicineID, batch)
	b, ok := tx.repo.batches[key]
	if !ok {
		b = BatchBalance{MedicineID: medicineID, BatchNumber: batch, ExpiryDate: expiry}
	}
	b.Quantity += delta
	tx.repo.batches[key] = b
	return nil
}

func newTestService(repo *memoryRepo, now time.Time) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRefillShelfLifeBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	// exactly 90 days out is too soon
	err := svc.Refill(ctx, RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 90), Quantity: 10},
	}})
	require.ErrorIs(t, err, ErrExpiryTooSoon)
	require.Empty(t, repo.balances)

	// 91 days out is accepted
	err = svc.Refill(ctx, RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 91), Quantity: 10},
	}})
	require.NoError(t, err)
	require.Equal(t, int64(10), repo.balances[1])
}

func TestRefillRejectsWholeRequestOnOneBadItem(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	svc := newTestService(repo, now)

	err := svc.Refill(context.Background(), RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 120), Quantity: 10},
		{MedicineID: 2, BatchNumber: "B2", ExpiryDate: now.AddDate(0, 0, 30), Quantity: 5},
	}})
	require.ErrorIs(t, err, ErrExpiryTooSoon)
	require.Empty(t, repo.balances)
	require.Empty(t, repo.batches)
}

func TestRefillDuplicateBatchInRequest(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	svc := newTestService(repo, now)

	err := svc.Refill(context.Background(), RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 120), Quantity: 10},
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 120), Quantity: 5},
	}})
	require.ErrorIs(t, err, ErrDuplicateBatchInRequest)
	require.Empty(t, repo.balances)

	// the same batch number on a different medicine is fine
	err = svc.Refill(context.Background(), RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 120), Quantity: 10},
		{MedicineID: 2, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 120), Quantity: 5},
	}})
	require.NoError(t, err)
	require.Equal(t, int64(10), repo.balances[1])
	require.Equal(t, int64(5), repo.balances[2])
}

func TestRefillBatchExpiryMismatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	svc := newTestService(repo, now)
	ctx := context.Background()

	expiry := now.AddDate(0, 0, 120)
	require.NoError(t, svc.Refill(ctx, RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 10},
	}}))

	// same batch and expiry increments the existing row
	require.NoError(t, svc.Refill(ctx, RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 3},
	}}))
	require.Equal(t, int64(13), repo.batches[batchKey(1, "B1")].Quantity)
	require.Equal(t, int64(13), repo.balances[1])

	// same batch with a different expiry conflicts
	err := svc.Refill(ctx, RefillInput{Items: []RefillItem{
		{MedicineID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 180), Quantity: 3},
	}})
	require.ErrorIs(t, err, ErrBatchExpiryMismatch)
	require.Equal(t, int64(13), repo.balances[1])
}

func TestCheckAndDraw(t *testing.T) {
	repo := newMemoryRepo()
	repo.balances[7] = 15
	repo.balances[8] = 2
	ctx := context.Background()

	// shortage on any medicine leaves the pool untouched
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shortages, err := CheckAndDraw(ctx, tx, map[int64]int64{7: 10, 8: 5})
		require.NoError(t, err)
		require.Len(t, shortages, 1)
		require.Equal(t, Shortage{MedicineID: 8, Required: 5, Available: 2}, shortages[0])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(15), repo.balances[7])
	require.Equal(t, int64(2), repo.balances[8])

	// full coverage draws every medicine down
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shortages, err := CheckAndDraw(ctx, tx, map[int64]int64{7: 10, 8: 2})
		require.NoError(t, err)
		require.Empty(t, shortages)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), repo.balances[7])
	require.Equal(t, int64(0), repo.balances[8])
}
