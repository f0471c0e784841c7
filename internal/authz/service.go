package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// Service resolves user identity rows into authorization contexts.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the authz service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Resolve loads the role and franchise binding for the user.
func (s *Service) Resolve(ctx context.Context, userID int64) (Context, error) {
	var (
		role        string
		franchiseID *int64
	)
	err := s.pool.QueryRow(ctx, `SELECT role, franchise_id FROM users WHERE id=$1 AND is_active`, userID).Scan(&role, &franchiseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Context{}, shared.ErrNotFound
		}
		return Context{}, fmt.Errorf("authz: resolve user %d: %w", userID, err)
	}

	ac := Context{UserID: userID, Role: Role(role)}
	if franchiseID != nil {
		ac.FranchiseID = *franchiseID
	}
	if !ac.Role.IsValid() {
		return Context{}, fmt.Errorf("authz: user %d has unknown role %q", userID, role)
	}
	if ac.Role == RoleFranchise && ac.FranchiseID == 0 {
		return Context{}, fmt.Errorf("authz: franchise user %d has no franchise binding", userID)
	}
	return ac, nil
}
