// Package transport tracks the physical delivery of a sale's goods to a
// franchise and owns the delivery confirmation that posts stock.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
)

// Status is the transport lifecycle state. Transitions only move forward;
// DELIVERED is terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusDelivered  Status = "DELIVERED"
)

// IsValid checks the status is one of the known values.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusDispatched || s == StatusDelivered
}

// rank orders statuses for forward-only transition checks.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDispatched:
		return 1
	case StatusDelivered:
		return 2
	}
	return -1
}

// Transport is the delivery record raised against a sale. One transport
// exists per sale. StockPostedAt is set the first time the delivery posts
// stock and is never cleared; it guards against double posting on retried
// confirmations.
type Transport struct {
	ID              int64      `json:"id"`
	SaleID          int64      `json:"sale_id"`
	FranchiseID     int64      `json:"franchise_id"`
	Status          Status     `json:"status"`
	TransportFee    float64    `json:"transport_fee"`
	TransporterName string     `json:"transporter_name,omitempty"`
	CompanyName     string     `json:"company_name,omitempty"`
	ReceiptNumber   string     `json:"receipt_number,omitempty"`
	VehicleNumber   string     `json:"vehicle_number,omitempty"`
	TrackingNumber  string     `json:"tracking_number,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	DispatchedAt    *time.Time `json:"dispatched_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	StockPostedAt   *time.Time `json:"stock_posted_at,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateInput describes a transport create request. Transports start at
// PENDING or DISPATCHED.
type CreateInput struct {
	SaleID          int64   `json:"sale_id" validate:"required,gt=0"`
	Status          Status  `json:"status" validate:"required,oneof=PENDING DISPATCHED"`
	TransportFee    float64 `json:"transport_fee" validate:"gte=0"`
	TransporterName string  `json:"transporter_name,omitempty" validate:"max=200"`
	CompanyName     string  `json:"company_name,omitempty" validate:"max=200"`
	ReceiptNumber   string  `json:"receipt_number,omitempty" validate:"max=100"`
	VehicleNumber   string  `json:"vehicle_number,omitempty" validate:"max=50"`
	TrackingNumber  string  `json:"tracking_number,omitempty" validate:"max=100"`
	Notes           string  `json:"notes,omitempty"`
	ActorID         int64   `json:"-"`
}

// AdminUpdateInput carries the admin-editable fields. Nil pointers leave
// the stored value unchanged. Status DELIVERED is rejected; that transition
// belongs to the franchise confirmation path.
type AdminUpdateInput struct {
	TransportFee    *float64 `json:"transport_fee,omitempty" validate:"omitempty,gte=0"`
	TransporterName *string  `json:"transporter_name,omitempty" validate:"omitempty,max=200"`
	CompanyName     *string  `json:"company_name,omitempty" validate:"omitempty,max=200"`
	ReceiptNumber   *string  `json:"receipt_number,omitempty" validate:"omitempty,max=100"`
	VehicleNumber   *string  `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	TrackingNumber  *string  `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	Notes           *string  `json:"notes,omitempty"`
	Status          *Status  `json:"status,omitempty" validate:"omitempty,oneof=PENDING DISPATCHED DELIVERED"`
}

// Filter filters transport listings.
type Filter struct {
	FranchiseID int64
	Status      Status
	Limit       int
	Offset      int
}

var (
	// ErrTransportNotFound indicates a missing transport.
	ErrTransportNotFound = errors.New("transport: not found")
	// ErrSaleAlreadyAssigned flags a second transport for the same sale.
	ErrSaleAlreadyAssigned = errors.New("transport: sale already has a transport")
	// ErrNotOwner is returned when a franchise confirms a transport it does not own.
	ErrNotOwner = errors.New("transport: transport belongs to another franchise")
	// ErrNotDispatched guards the delivery confirmation ordering.
	ErrNotDispatched = errors.New("transport: must be DISPATCHED before DELIVERED")
	// ErrDeliveredTerminal rejects updates to a delivered transport.
	ErrDeliveredTerminal = errors.New("transport: DELIVERED is terminal")
	// ErrStatusReserved rejects admin attempts to set DELIVERED directly.
	ErrStatusReserved = errors.New("transport: DELIVERED is set by the franchise confirmation")
	// ErrBackwardTransition rejects status moves against the lifecycle order.
	ErrBackwardTransition = errors.New("transport: status cannot move backwards")
)

// InsufficientStockError reports the medicines the admin pool cannot cover
// for a delivery. The whole confirmation fails; nothing is posted.
type InsufficientStockError struct {
	Shortages []adminstock.Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("medicine %d requires %d, available %d", s.MedicineID, s.Required, s.Available))
	}
	return "transport: insufficient admin stock: " + strings.Join(parts, "; ")
}
