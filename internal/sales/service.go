package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Create(ctx context.Context, sale Sale, details []Detail) (int64, error)
	GetWithDetails(ctx context.Context, saleID int64) (SaleWithDetails, error)
	List(ctx context.Context, filter Filter) ([]Sale, int, error)
}

// Service owns sale document creation and reads.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create records a sale with its line items. Line amounts are derived from
// quantity and rate server side.
func (s *Service) Create(ctx context.Context, input CreateInput) (SaleWithDetails, error) {
	saleDate := input.SaleDate
	if saleDate.IsZero() {
		saleDate = time.Now().UTC()
	}
	sale := Sale{
		Code:        fmt.Sprintf("SL-%d", time.Now().UnixNano()),
		FranchiseID: input.FranchiseID,
		SaleDate:    saleDate,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
	}
	details := make([]Detail, 0, len(input.Details))
	for _, d := range input.Details {
		details = append(details, Detail{
			MedicineID:  d.MedicineID,
			BatchNumber: d.BatchNumber,
			ExpiryDate:  d.ExpiryDate,
			Quantity:    d.Quantity,
			Rate:        d.Rate,
			Amount:      float64(d.Quantity) * d.Rate,
		})
	}

	id, err := s.repo.Create(ctx, sale, details)
	if err != nil {
		return SaleWithDetails{}, fmt.Errorf("sales: create: %w", err)
	}
	return s.repo.GetWithDetails(ctx, id)
}

// Get loads one sale with its line items.
func (s *Service) Get(ctx context.Context, saleID int64) (SaleWithDetails, error) {
	return s.repo.GetWithDetails(ctx, saleID)
}

// List returns sale headers.
func (s *Service) List(ctx context.Context, filter Filter) ([]Sale, int, error) {
	return s.repo.List(ctx, filter)
}
