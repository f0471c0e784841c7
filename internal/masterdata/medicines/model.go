// Package medicines holds the medicine master used by sales, stock and
// admin stock.
package medicines

import "errors"

// Medicine represents one sellable medicine.
type Medicine struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Unit         string `json:"unit,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// Input describes a create or update request.
type Input struct {
	Code         string `json:"code" validate:"required,max=50"`
	Name         string `json:"name" validate:"required,max=200"`
	Manufacturer string `json:"manufacturer,omitempty" validate:"max=200"`
	Unit         string `json:"unit,omitempty" validate:"max=50"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

var (
	// ErrNotFound indicates a missing medicine.
	ErrNotFound = errors.New("medicines: not found")
	// ErrDuplicateCode flags a code already in use.
	ErrDuplicateCode = errors.New("medicines: code already in use")
)
