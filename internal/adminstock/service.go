package adminstock

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRows(ctx context.Context, filter RowFilter) ([]Row, int, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns refill and pool reporting.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the admin stock service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Refill adds quantity to the pool for each item. The whole request is
// validated before any write: a batch expiring within 90 days or a medicine
// batch listed twice rejects every item. A batch number already recorded
// for the medicine must carry the same expiry date. All items apply in one
// transaction.
func (s *Service) Refill(ctx context.Context, input RefillInput) error {
	now := s.now()
	seen := make(map[string]struct{}, len(input.Items))
	for _, item := range input.Items {
		if !ValidShelfLife(item.ExpiryDate, now) {
			return fmt.Errorf("%w: medicine %d batch %s", ErrExpiryTooSoon, item.MedicineID, item.BatchNumber)
		}
		key := strconv.FormatInt(item.MedicineID, 10) + ":" + item.BatchNumber
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: medicine %d batch %s", ErrDuplicateBatchInRequest, item.MedicineID, item.BatchNumber)
		}
		seen[key] = struct{}{}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range input.Items {
			existing, found, err := tx.GetBatch(ctx, item.MedicineID, item.BatchNumber)
			if err != nil {
				return err
			}
			if found && !existing.ExpiryDate.Equal(item.ExpiryDate) {
				return fmt.Errorf("%w: medicine %d batch %s", ErrBatchExpiryMismatch, item.MedicineID, item.BatchNumber)
			}
			if err := tx.AddToBatch(ctx, item.MedicineID, item.BatchNumber, item.ExpiryDate, item.Quantity); err != nil {
				return err
			}
			if err := tx.AddToBalance(ctx, item.MedicineID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "adminstock.refill",
			Entity:   "admin_stock",
			EntityID: "pool",
			Meta:     map[string]any{"items": len(input.Items)},
		}); err != nil {
			s.logger.Warn("refill audit record failed", "error", err)
		}
	}
	return nil
}

// ListRows lists batch rows with per-medicine totals.
func (s *Service) ListRows(ctx context.Context, filter RowFilter) ([]Row, int, error) {
	return s.repo.ListRows(ctx, filter)
}

// CheckAndDraw verifies the pool can cover every required quantity and then
// decrements it. Runs on the caller's transaction; all balances are locked
// before any is changed so a shortage leaves the pool untouched.
func CheckAndDraw(ctx context.Context, tx TxRepository, required map[int64]int64) ([]Shortage, error) {
	medicineIDs := make([]int64, 0, len(required))
	for id := range required {
		medicineIDs = append(medicineIDs, id)
	}
	// stable order keeps concurrent deliveries from deadlocking on row locks
	slices.Sort(medicineIDs)

	var shortages []Shortage
	for _, id := range medicineIDs {
		bal, err := tx.GetBalanceForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if bal.Quantity < required[id] {
			shortages = append(shortages, Shortage{MedicineID: id, Required: required[id], Available: bal.Quantity})
		}
	}
	if len(shortages) > 0 {
		return shortages, nil
	}
	for _, id := range medicineIDs {
		if err := tx.AddToBalance(ctx, id, -required[id]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
