package transport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
)

// memoryWorld backs every transaction-scoped repository the delivery path
// composes. WithTx snapshots the state and restores it when the callback
// fails, mirroring a database rollback.
type memoryWorld struct {
	transports         map[int64]Transport
	saleDocs           map[int64]sales.SaleWithDetails
	adminBalances      map[int64]int64
	stockTxns          []stock.Transaction
	stockLedger        []stock.LedgerLine
	stockBalances      map[string]int64
	stockBatchBalances map[string]int64
	nextID             int64
}

func newMemoryWorld() *memoryWorld {
	return &memoryWorld{
		transports:         make(map[int64]Transport),
		saleDocs:           make(map[int64]sales.SaleWithDetails),
		adminBalances:      make(map[int64]int64),
		stockBalances:      make(map[string]int64),
		stockBatchBalances: make(map[string]int64),
	}
}

func (w *memoryWorld) snapshot() *memoryWorld {
	return &memoryWorld{
		transports:         maps.Clone(w.transports),
		saleDocs:           maps.Clone(w.saleDocs),
		adminBalances:      maps.Clone(w.adminBalances),
		stockTxns:          slices.Clone(w.stockTxns),
		stockLedger:        slices.Clone(w.stockLedger),
		stockBalances:      maps.Clone(w.stockBalances),
		stockBatchBalances: maps.Clone(w.stockBatchBalances),
		nextID:             w.nextID,
	}
}

func (w *memoryWorld) restore(snap *memoryWorld) {
	*w = *snap
}

func (w *memoryWorld) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	snap := w.snapshot()
	tx := Tx{
		Transports: &fakeTransports{w: w},
		Stock:      &fakeStock{w: w},
		AdminStock: &fakeAdminStock{w: w},
		Sales:      &fakeSales{w: w},
	}
	if err := fn(ctx, tx); err != nil {
		w.restore(snap)
		return err
	}
	return nil
}

func (w *memoryWorld) Create(ctx context.Context, t Transport) (Transport, error) {
	for _, existing := range w.transports {
		if existing.SaleID == t.SaleID {
			return Transport{}, ErrSaleAlreadyAssigned
		}
	}
	w.nextID++
	t.ID = w.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	w.transports[t.ID] = t
	return t, nil
}

func (w *memoryWorld) Get(ctx context.Context, id int64) (Transport, error) {
	t, ok := w.transports[id]
	if !ok {
		return Transport{}, ErrTransportNotFound
	}
	return t, nil
}

func (w *memoryWorld) List(ctx context.Context, filter Filter) ([]Transport, int, error) {
	var result []Transport
	for _, t := range w.transports {
		if filter.FranchiseID != 0 && t.FranchiseID != filter.FranchiseID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, t)
	}
	return result, len(result), nil
}

func (w *memoryWorld) GetWithDetails(ctx context.Context, saleID int64) (sales.SaleWithDetails, error) {
	s, ok := w.saleDocs[saleID]
	if !ok {
		return sales.SaleWithDetails{}, sales.ErrSaleNotFound
	}
	return s, nil
}

type fakeTransports struct{ w *memoryWorld }

func (f *fakeTransports) GetForUpdate(ctx context.Context, id int64) (Transport, error) {
	return f.w.Get(ctx, id)
}

func (f *fakeTransports) Save(ctx context.Context, t Transport) error {
	if _, ok := f.w.transports[t.ID]; !ok {
		return ErrTransportNotFound
	}
	f.w.transports[t.ID] = t
	return nil
}

type fakeStock struct{ w *memoryWorld }

func stockKey(franchiseID, medicineID int64) string {
	return fmt.Sprintf("%d:%d", franchiseID, medicineID)
}

func stockBatchKey(franchiseID, medicineID int64, batch string, expiry time.Time) string {
	return fmt.Sprintf("%d:%d:%s:%s", franchiseID, medicineID, batch, expiry.Format("2006-01-02"))
}

func (f *fakeStock) FindTransactionBySale(ctx context.Context, saleID int64) (stock.Transaction, error) {
	for _, txn := range f.w.stockTxns {
		if txn.SaleID != nil && *txn.SaleID == saleID {
			return txn, nil
		}
	}
	return stock.Transaction{}, stock.ErrTransactionNotFound
}

func (f *fakeStock) InsertTransaction(ctx context.Context, txn stock.Transaction) (int64, error) {
	f.w.nextID++
	txn.ID = f.w.nextID
	f.w.stockTxns = append(f.w.stockTxns, txn)
	return txn.ID, nil
}

func (f *fakeStock) InsertLedgerLine(ctx context.Context, line stock.LedgerLine) (int64, error) {
	f.w.nextID++
	line.ID = f.w.nextID
	f.w.stockLedger = append(f.w.stockLedger, line)
	return line.ID, nil
}

func (f *fakeStock) AddToBalance(ctx context.Context, franchiseID, medicineID, delta int64) error {
	f.w.stockBalances[stockKey(franchiseID, medicineID)] += delta
	return nil
}

func (f *fakeStock) AddToBatchBalance(ctx context.Context, franchiseID, medicineID int64, batch string, expiry time.Time, delta int64) error {
	f.w.stockBatchBalances[stockBatchKey(franchiseID, medicineID, batch, expiry)] += delta
	return nil
}

func (f *fakeStock) GetBatchBalanceForUpdate(ctx context.Context, franchiseID, medicineID int64, batch string, expiry time.Time) (stock.BatchBalance, error) {
	return stock.BatchBalance{
		FranchiseID: franchiseID,
		MedicineID:  medicineID,
		BatchNumber: batch,
		ExpiryDate:  expiry,
		Quantity:    f.w.stockBatchBalances[stockBatchKey(franchiseID, medicineID, batch, expiry)],
	}, nil
}

func (f *fakeStock) InsertRecall(ctx context.Context, rec stock.Recall) (int64, error) {
	f.w.nextID++
	return f.w.nextID, nil
}

type fakeAdminStock struct{ w *memoryWorld }

func (f *fakeAdminStock) GetBalanceForUpdate(ctx context.Context, medicineID int64) (adminstock.Balance, error) {
	return adminstock.Balance{MedicineID: medicineID, Quantity: f.w.adminBalances[medicineID]}, nil
}

func (f *fakeAdminStock) AddToBalance(ctx context.Context, medicineID, delta int64) error {
	f.w.adminBalances[medicineID] += delta
	return nil
}

func (f *fakeAdminStock) GetBatch(ctx context.Context, medicineID int64, batch string) (adminstock.BatchBalance, bool, error) {
	return adminstock.BatchBalance{}, false, nil
}

func (f *fakeAdminStock) AddToBatch(ctx context.Context, medicineID int64, batch string, expiry time.Time, delta int64) error {
	return nil
}

type fakeSales struct{ w *memoryWorld }

func (f *fakeSales) GetWithDetails(ctx context.Context, saleID int64) (sales.SaleWithDetails, error) {
	return f.w.GetWithDetails(ctx, saleID)
}

func fixedTime() time.Time {
	return time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
}

type fakePostings struct{ count int }

func (f *fakePostings) StockPosted() { f.count++ }

func newTestService(w *memoryWorld) *Service {
	svc := NewService(w, w, nil, nil, nil, nil)
	svc.now = fixedTime
	return svc
}

func seedSale(w *memoryWorld, saleID, franchiseID int64, details ...sales.Detail) {
	for i := range details {
		details[i].SaleID = saleID
	}
	w.saleDocs[saleID] = sales.SaleWithDetails{
		Sale:    sales.Sale{ID: saleID, Code: fmt.Sprintf("SL-%d", saleID), FranchiseID: franchiseID},
		Details: details,
	}
}

func seedTransport(w *memoryWorld, saleID, franchiseID int64, status Status) Transport {
	w.nextID++
	t := Transport{ID: w.nextID, SaleID: saleID, FranchiseID: franchiseID, Status: status}
	if status != StatusPending {
		dispatched := fixedTime().Add(-time.Hour)
		t.DispatchedAt = &dispatched
	}
	w.transports[t.ID] = t
	return t
}

func franchiseCaller(franchiseID int64) authz.Context {
	return authz.Context{UserID: 100, Role: authz.RoleFranchise, FranchiseID: franchiseID}
}

func TestMarkDeliveredPostsStockOnce(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	expiry := fixedTime().AddDate(0, 0, 120)
	seedSale(w, 1, 5, sales.Detail{MedicineID: 7, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 10, Rate: 2.5, Amount: 25})
	tr := seedTransport(w, 1, 5, StatusDispatched)
	w.adminBalances[7] = 15
	w.stockBalances[stockKey(5, 7)] = 3

	got, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.StockPostedAt)

	require.Equal(t, int64(5), w.adminBalances[7])
	require.Equal(t, int64(13), w.stockBalances[stockKey(5, 7)])
	require.Equal(t, int64(10), w.stockBatchBalances[stockBatchKey(5, 7, "B1", expiry)])
	require.Len(t, w.stockLedger, 1)
	require.Equal(t, int64(10), w.stockLedger[0].QtyChange)
	require.Len(t, w.stockTxns, 1)
	require.Equal(t, stock.KindDelivery, w.stockTxns[0].Kind)

	// retried confirmation is a no-op returning the same record
	again, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, int64(5), w.adminBalances[7])
	require.Len(t, w.stockLedger, 1)
}

func TestMarkDeliveredAggregatesPerMedicine(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	expiry := fixedTime().AddDate(0, 0, 200)
	seedSale(w, 1, 5,
		sales.Detail{MedicineID: 7, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 4},
		sales.Detail{MedicineID: 7, BatchNumber: "B2", ExpiryDate: expiry, Quantity: 6},
		sales.Detail{MedicineID: 8, BatchNumber: "C1", ExpiryDate: expiry, Quantity: 1},
	)
	tr := seedTransport(w, 1, 5, StatusDispatched)
	w.adminBalances[7] = 10
	w.adminBalances[8] = 1

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.NoError(t, err)
	require.Equal(t, int64(0), w.adminBalances[7])
	require.Equal(t, int64(0), w.adminBalances[8])
	require.Equal(t, int64(10), w.stockBalances[stockKey(5, 7)])
	require.Equal(t, int64(4), w.stockBatchBalances[stockBatchKey(5, 7, "B1", expiry)])
	require.Equal(t, int64(6), w.stockBatchBalances[stockBatchKey(5, 7, "B2", expiry)])
	require.Len(t, w.stockLedger, 3)
}

func TestMarkDeliveredInsufficientStockChangesNothing(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	expiry := fixedTime().AddDate(0, 0, 120)
	seedSale(w, 1, 5, sales.Detail{MedicineID: 7, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 10})
	tr := seedTransport(w, 1, 5, StatusDispatched)
	w.adminBalances[7] = 3

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortages, 1)
	require.Equal(t, adminstock.Shortage{MedicineID: 7, Required: 10, Available: 3}, short.Shortages[0])

	after := w.transports[tr.ID]
	require.Equal(t, StatusDispatched, after.Status)
	require.Nil(t, after.DeliveredAt)
	require.Nil(t, after.StockPostedAt)
	require.Equal(t, int64(3), w.adminBalances[7])
	require.Empty(t, w.stockLedger)
	require.Empty(t, w.stockBalances)
}

func TestMarkDeliveredWrongFranchise(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	seedSale(w, 1, 5)
	tr := seedTransport(w, 1, 5, StatusDispatched)

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(6))
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestMarkDeliveredRequiresDispatched(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	seedSale(w, 1, 5)
	tr := seedTransport(w, 1, 5, StatusPending)

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.ErrorIs(t, err, ErrNotDispatched)
}

func TestMarkDeliveredMissingSale(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	tr := seedTransport(w, 99, 5, StatusDispatched)

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.ErrorIs(t, err, sales.ErrSaleNotFound)
}

func TestMarkDeliveredMissingTransport(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	_, err := svc.MarkDelivered(context.Background(), 12345, franchiseCaller(5))
	require.ErrorIs(t, err, ErrTransportNotFound)
}

func TestCreateTransport(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	seedSale(w, 1, 5)

	tr, err := svc.Create(context.Background(), CreateInput{SaleID: 1, Status: StatusDispatched, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), tr.FranchiseID)
	require.NotNil(t, tr.DispatchedAt)

	// one transport per sale
	_, err = svc.Create(context.Background(), CreateInput{SaleID: 1, Status: StatusPending, ActorID: 2})
	require.ErrorIs(t, err, ErrSaleAlreadyAssigned)

	// missing sale
	_, err = svc.Create(context.Background(), CreateInput{SaleID: 404, Status: StatusPending, ActorID: 2})
	require.ErrorIs(t, err, sales.ErrSaleNotFound)
}

func TestCreateTransportPendingHasNoDispatchTime(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	seedSale(w, 1, 5)

	tr, err := svc.Create(context.Background(), CreateInput{SaleID: 1, Status: StatusPending, ActorID: 2})
	require.NoError(t, err)
	require.Nil(t, tr.DispatchedAt)
}

func TestAdminUpdateRejectsDelivered(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	tr := seedTransport(w, 1, 5, StatusPending)

	delivered := StatusDelivered
	_, err := svc.AdminUpdate(context.Background(), tr.ID, AdminUpdateInput{Status: &delivered})
	require.ErrorIs(t, err, ErrStatusReserved)
}

func TestAdminUpdateDeliveredIsFrozen(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	tr := seedTransport(w, 1, 5, StatusDelivered)

	notes := "late"
	_, err := svc.AdminUpdate(context.Background(), tr.ID, AdminUpdateInput{Notes: &notes})
	require.ErrorIs(t, err, ErrDeliveredTerminal)
}

func TestAdminUpdateNoBackwardTransition(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	tr := seedTransport(w, 1, 5, StatusDispatched)

	pending := StatusPending
	_, err := svc.AdminUpdate(context.Background(), tr.ID, AdminUpdateInput{Status: &pending})
	require.ErrorIs(t, err, ErrBackwardTransition)
}

func TestAdminUpdateDispatches(t *testing.T) {
	w := newMemoryWorld()
	svc := newTestService(w)
	tr := seedTransport(w, 1, 5, StatusPending)

	dispatched := StatusDispatched
	fee := 150.0
	name := "Speedline"
	updated, err := svc.AdminUpdate(context.Background(), tr.ID, AdminUpdateInput{
		Status:          &dispatched,
		TransportFee:    &fee,
		TransporterName: &name,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, updated.Status)
	require.NotNil(t, updated.DispatchedAt)
	require.Equal(t, 150.0, updated.TransportFee)
	require.Equal(t, "Speedline", updated.TransporterName)
}

func TestMarkDeliveredCountsPosting(t *testing.T) {
	w := newMemoryWorld()
	postings := &fakePostings{}
	svc := newTestService(w)
	svc.postings = postings
	expiry := fixedTime().AddDate(0, 0, 120)
	seedSale(w, 1, 5, sales.Detail{MedicineID: 7, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 10})
	tr := seedTransport(w, 1, 5, StatusDispatched)
	w.adminBalances[7] = 15

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.NoError(t, err)
	require.Equal(t, 1, postings.count)

	// retried confirmation posts nothing, so the counter stays put
	_, err = svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	require.NoError(t, err)
	require.Equal(t, 1, postings.count)
}

func TestMarkDeliveredShortageCountsNothing(t *testing.T) {
	w := newMemoryWorld()
	postings := &fakePostings{}
	svc := newTestService(w)
	svc.postings = postings
	expiry := fixedTime().AddDate(0, 0, 120)
	seedSale(w, 1, 5, sales.Detail{MedicineID: 7, BatchNumber: "B1", ExpiryDate: expiry, Quantity: 10})
	tr := seedTransport(w, 1, 5, StatusDispatched)
	w.adminBalances[7] = 2

	_, err := svc.MarkDelivered(context.Background(), tr.ID, franchiseCaller(5))
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, 0, postings.count)
}
