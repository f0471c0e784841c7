// Package franchises holds the franchise outlet master.
package franchises

import "errors"

// Franchise represents one outlet receiving stock from head office.
type Franchise struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// Input describes a create or update request.
type Input struct {
	Code         string `json:"code" validate:"required,max=50"`
	Name         string `json:"name" validate:"required,max=200"`
	Address      string `json:"address,omitempty" validate:"max=500"`
	ContactPhone string `json:"contact_phone,omitempty" validate:"max=30"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

var (
	// ErrNotFound indicates a missing franchise.
	ErrNotFound = errors.New("franchises: not found")
	// ErrDuplicateCode flags a code already in use.
	ErrDuplicateCode = errors.New("franchises: code already in use")
)
