// Package adminstock manages the central inventory pool held by head
// office before allocation to any franchise. Refills add quantity per
// medicine batch; delivery confirmations draw the pool down per medicine.
package adminstock

import (
	"errors"
	"time"
)

// Balance is the pool quantity per medicine.
type Balance struct {
	MedicineID int64     `json:"medicine_id"`
	Quantity   int64     `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BatchBalance is the pool quantity per medicine batch. Batch numbers are
// unique per medicine; the expiry date is an attribute of the batch.
type BatchBalance struct {
	MedicineID  int64     `json:"medicine_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RefillItem is one line of a refill request.
type RefillItem struct {
	MedicineID  int64     `json:"medicine_id" validate:"required,gt=0"`
	BatchNumber string    `json:"batch_number" validate:"required,max=100"`
	ExpiryDate  time.Time `json:"expiry_date" validate:"required"`
	Quantity    int64     `json:"quantity" validate:"required,gt=0"`
}

// RefillInput is a refill request. All items apply in one transaction.
type RefillInput struct {
	Items   []RefillItem `json:"items" validate:"required,min=1,dive"`
	ActorID int64        `json:"-"`
}

// Row is one batch row joined with the medicine name for listings.
type Row struct {
	MedicineID   int64     `json:"medicine_id"`
	MedicineName string    `json:"medicine_name"`
	BatchNumber  string    `json:"batch_number"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Quantity     int64     `json:"quantity"`
	TotalForMed  int64     `json:"medicine_total"`
}

// RowFilter filters the admin stock rows listing.
type RowFilter struct {
	MedicineID int64
	Search     string
	Limit      int
	Offset     int
}

// Shortage describes one medicine that cannot cover a requested quantity.
type Shortage struct {
	MedicineID int64 `json:"medicine_id"`
	Required   int64 `json:"required"`
	Available  int64 `json:"available"`
}

var (
	// ErrExpiryTooSoon is returned for batches expiring within 90 days.
	ErrExpiryTooSoon = errors.New("adminstock: batch expiry must be more than 90 days out")
	// ErrDuplicateBatchInRequest flags the same medicine batch listed twice in one refill.
	ErrDuplicateBatchInRequest = errors.New("adminstock: duplicate batch number for medicine in request")
	// ErrBatchExpiryMismatch flags a batch number already recorded with a different expiry.
	ErrBatchExpiryMismatch = errors.New("adminstock: batch number already used with a different expiry date")
)

// minRemainingShelfLife is the shortest acceptable time to expiry for a
// refilled batch. An expiry exactly at the boundary is rejected.
const minRemainingShelfLife = 90 * 24 * time.Hour

// ValidShelfLife reports whether the expiry is strictly beyond the minimum
// shelf life measured from now.
func ValidShelfLife(expiry, now time.Time) bool {
	return expiry.After(now.Add(minRemainingShelfLife))
}
