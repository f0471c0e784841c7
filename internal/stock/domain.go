// Package stock maintains the append-only stock ledger and the balance
// projections derived from it. The ledger is the source of truth; the
// balance tables are written only by the posting path in this package and
// by the rebuild routine.
package stock

import (
	"errors"
	"time"
)

// TransactionKind enumerates the origins of ledger postings.
type TransactionKind string

const (
	// KindDelivery marks postings created by a transport delivery confirmation.
	KindDelivery TransactionKind = "DELIVERY"
	// KindRecall marks postings created when a batch is pulled back from a franchise.
	KindRecall TransactionKind = "RECALL"
)

// Transaction groups the ledger lines written by one posting.
type Transaction struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Kind      TransactionKind `json:"kind"`
	SaleID    *int64          `json:"sale_id,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy int64           `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// LedgerLine is one signed quantity change. Lines are never updated or
// deleted outside the rebuild routine.
type LedgerLine struct {
	ID            int64      `json:"id"`
	TransactionID int64      `json:"transaction_id"`
	FranchiseID   int64      `json:"franchise_id"`
	MedicineID    int64      `json:"medicine_id"`
	BatchNumber   *string    `json:"batch_number,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	QtyChange     int64      `json:"qty_change"`
	Rate          float64    `json:"rate"`
	Amount        float64    `json:"amount"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Balance is the current quantity per franchise and medicine.
type Balance struct {
	FranchiseID int64     `json:"franchise_id"`
	MedicineID  int64     `json:"medicine_id"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BatchBalance is the current quantity per franchise, medicine, batch and
// expiry date. Maintained only for lines carrying both batch and expiry.
type BatchBalance struct {
	FranchiseID int64     `json:"franchise_id"`
	MedicineID  int64     `json:"medicine_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Recall is the audit record written when a batch is pulled back.
type Recall struct {
	ID                 int64     `json:"id"`
	FranchiseID        int64     `json:"franchise_id"`
	MedicineID         int64     `json:"medicine_id"`
	BatchNumber        string    `json:"batch_number"`
	ExpiryDate         time.Time `json:"expiry_date"`
	Quantity           int64     `json:"quantity"`
	RecalledAt         time.Time `json:"recalled_at"`
	StockTransactionID int64     `json:"stock_transaction_id"`
}

// RecallInput describes a recall request.
type RecallInput struct {
	FranchiseID int64     `json:"franchise_id" validate:"required,gt=0"`
	MedicineID  int64     `json:"medicine_id" validate:"required,gt=0"`
	BatchNumber string    `json:"batch_number" validate:"required,max=100"`
	ExpiryDate  time.Time `json:"expiry_date" validate:"required"`
	Quantity    int64     `json:"quantity" validate:"required,gt=0"`
	Notes       string    `json:"notes,omitempty"`
	ActorID     int64     `json:"-"`
}

// RecallRow is a recall joined with reference names for listings.
type RecallRow struct {
	Recall
	MedicineName  string `json:"medicine_name"`
	FranchiseName string `json:"franchise_name"`
}

// RecallFilter filters recall listings.
type RecallFilter struct {
	FranchiseID int64
	MedicineID  int64
	Limit       int
	Offset      int
}

// ClosingStockRow is one line of the closing stock report.
type ClosingStockRow struct {
	FranchiseID   int64  `json:"franchise_id"`
	FranchiseName string `json:"franchise_name"`
	MedicineID    int64  `json:"medicine_id"`
	MedicineName  string `json:"medicine_name"`
	Quantity      int64  `json:"quantity"`
}

// ClosingStockFilter filters the closing stock report. FranchiseID zero
// means all franchises.
type ClosingStockFilter struct {
	FranchiseID int64
	Search      string
	Limit       int
	Offset      int
}

// LedgerStat is a cheap drift detector over the whole ledger.
type LedgerStat struct {
	Rows   int64
	QtySum int64
}

// RebuildResult summarises a balance rebuild run.
type RebuildResult struct {
	BalanceRows      int `json:"balance_rows"`
	BatchBalanceRows int `json:"batch_balance_rows"`
}

// DriftRow describes a balance row diverging from the ledger sum.
type DriftRow struct {
	FranchiseID int64 `json:"franchise_id"`
	MedicineID  int64 `json:"medicine_id"`
	LedgerQty   int64 `json:"ledger_qty"`
	BalanceQty  int64 `json:"balance_qty"`
}

var (
	// ErrInvalidQuantity indicates a zero or malformed quantity change.
	ErrInvalidQuantity = errors.New("stock: quantity change must be non zero")
	// ErrTransactionNotFound indicates a missing stock transaction.
	ErrTransactionNotFound = errors.New("stock: transaction not found")
	// ErrInsufficientBatchStock is returned when a recall exceeds the batch balance.
	ErrInsufficientBatchStock = errors.New("stock: batch balance below requested quantity")
	// ErrRebuildLocked indicates another rebuild currently holds the maintenance lock.
	ErrRebuildLocked = errors.New("stock: rebuild already in progress")
	// ErrLedgerChangedDuringRebuild indicates concurrent ledger writes were detected.
	ErrLedgerChangedDuringRebuild = errors.New("stock: ledger changed while rebuilding balances")
)
