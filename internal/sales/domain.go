// Package sales records head-office sales to franchises. A sale is the
// commercial document a transport is raised against; its line items drive
// the stock postings when the transport is delivered.
package sales

import (
	"errors"
	"time"
)

// Sale is the document header.
type Sale struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	FranchiseID int64     `json:"franchise_id"`
	SaleDate    time.Time `json:"sale_date"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Detail is one line item. Amount is derived as Quantity times Rate.
type Detail struct {
	ID          int64     `json:"id"`
	SaleID      int64     `json:"sale_id"`
	MedicineID  int64     `json:"medicine_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int64     `json:"quantity"`
	Rate        float64   `json:"rate"`
	Amount      float64   `json:"amount"`
}

// SaleWithDetails bundles a sale and its line items.
type SaleWithDetails struct {
	Sale    Sale     `json:"sale"`
	Details []Detail `json:"details"`
}

// DetailInput is one line item of a create request.
type DetailInput struct {
	MedicineID  int64     `json:"medicine_id" validate:"required,gt=0"`
	BatchNumber string    `json:"batch_number" validate:"required,max=100"`
	ExpiryDate  time.Time `json:"expiry_date" validate:"required"`
	Quantity    int64     `json:"quantity" validate:"required,gt=0"`
	Rate        float64   `json:"rate" validate:"gte=0"`
}

// CreateInput describes a sale create request.
type CreateInput struct {
	FranchiseID int64         `json:"franchise_id" validate:"required,gt=0"`
	SaleDate    time.Time     `json:"sale_date"`
	Notes       string        `json:"notes,omitempty"`
	Details     []DetailInput `json:"details" validate:"required,min=1,dive"`
	ActorID     int64         `json:"-"`
}

// Filter filters sale listings.
type Filter struct {
	FranchiseID int64
	Search      string
	Limit       int
	Offset      int
}

// ErrSaleNotFound indicates a missing sale.
var ErrSaleNotFound = errors.New("sales: sale not found")
