package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Create(ctx context.Context, t Transport) (Transport, error)
	Get(ctx context.Context, id int64) (Transport, error)
	List(ctx context.Context, filter Filter) ([]Transport, int, error)
}

// SaleReader loads sale documents outside a delivery transaction.
type SaleReader interface {
	GetWithDetails(ctx context.Context, saleID int64) (sales.SaleWithDetails, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates cached stock reports after a posting commits.
type CacheBumper interface {
	BumpCache(ctx context.Context)
}

// PostingRecorder counts committed ledger postings.
type PostingRecorder interface {
	StockPosted()
}

// Service owns the transport lifecycle and the delivery confirmation.
type Service struct {
	repo     RepositoryPort
	sales    SaleReader
	audit    AuditPort
	cache    CacheBumper
	postings PostingRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the transport service.
func NewService(repo RepositoryPort, saleReader SaleReader, audit AuditPort, cache CacheBumper, postings PostingRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sales: saleReader, audit: audit, cache: cache, postings: postings, logger: logger, now: time.Now}
}

// Create raises a transport against a sale. The franchise is taken from the
// sale document; a sale carries at most one transport.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transport, error) {
	sale, err := s.sales.GetWithDetails(ctx, input.SaleID)
	if err != nil {
		return Transport{}, err
	}

	t := Transport{
		SaleID:          input.SaleID,
		FranchiseID:     sale.Sale.FranchiseID,
		Status:          input.Status,
		TransportFee:    input.TransportFee,
		TransporterName: input.TransporterName,
		CompanyName:     input.CompanyName,
		ReceiptNumber:   input.ReceiptNumber,
		VehicleNumber:   input.VehicleNumber,
		TrackingNumber:  input.TrackingNumber,
		Notes:           input.Notes,
		CreatedBy:       input.ActorID,
	}
	if input.Status == StatusDispatched {
		now := s.now().UTC()
		t.DispatchedAt = &now
	}
	return s.repo.Create(ctx, t)
}

// Get loads one transport.
func (s *Service) Get(ctx context.Context, id int64) (Transport, error) {
	return s.repo.Get(ctx, id)
}

// List returns transports.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transport, int, error) {
	return s.repo.List(ctx, filter)
}

// AdminUpdate edits transport detail fields and may move the status forward
// to DISPATCHED. Setting DELIVERED here is rejected; that transition is
// reserved for the franchise confirmation. A delivered transport is frozen.
func (s *Service) AdminUpdate(ctx context.Context, id int64, input AdminUpdateInput) (Transport, error) {
	if input.Status != nil && *input.Status == StatusDelivered {
		return Transport{}, ErrStatusReserved
	}

	var updated Transport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.Transports.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == StatusDelivered {
			return ErrDeliveredTerminal
		}
		if input.Status != nil && input.Status.rank() < t.Status.rank() {
			return ErrBackwardTransition
		}

		if input.TransportFee != nil {
			t.TransportFee = *input.TransportFee
		}
		if input.TransporterName != nil {
			t.TransporterName = *input.TransporterName
		}
		if input.CompanyName != nil {
			t.CompanyName = *input.CompanyName
		}
		if input.ReceiptNumber != nil {
			t.ReceiptNumber = *input.ReceiptNumber
		}
		if input.VehicleNumber != nil {
			t.VehicleNumber = *input.VehicleNumber
		}
		if input.TrackingNumber != nil {
			t.TrackingNumber = *input.TrackingNumber
		}
		if input.Notes != nil {
			t.Notes = *input.Notes
		}
		if input.Status != nil && *input.Status == StatusDispatched && t.Status == StatusPending {
			now := s.now().UTC()
			t.Status = StatusDispatched
			t.DispatchedAt = &now
		}

		if err := tx.Transports.Save(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return Transport{}, err
	}
	return updated, nil
}

// MarkDelivered confirms receipt of the goods at the franchise and posts
// stock. The transport row is locked for the whole transaction, so a
// concurrent confirmation waits and then sees DELIVERED. Confirming an
// already delivered transport returns it unchanged. The admin pool check is
// all or nothing; a shortage on any medicine aborts every write.
func (s *Service) MarkDelivered(ctx context.Context, transportID int64, caller authz.Context) (Transport, error) {
	var (
		result Transport
		posted bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.Transports.GetForUpdate(ctx, transportID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && t.FranchiseID != caller.FranchiseID {
			return ErrNotOwner
		}
		if t.Status == StatusDelivered {
			result = t
			return nil
		}
		if t.Status != StatusDispatched {
			return ErrNotDispatched
		}

		sale, err := tx.Sales.GetWithDetails(ctx, t.SaleID)
		if err != nil {
			return err
		}

		required := make(map[int64]int64, len(sale.Details))
		for _, d := range sale.Details {
			required[d.MedicineID] += d.Quantity
		}
		shortages, err := adminstock.CheckAndDraw(ctx, tx.AdminStock, required)
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return &InsufficientStockError{Shortages: shortages}
		}

		now := s.now().UTC()
		t.Status = StatusDelivered
		t.DeliveredAt = &now

		// stockPostedAt is the sole double-posting guard; once set the
		// ledger lines for this sale exist and are never touched again
		if t.StockPostedAt == nil {
			txn, err := tx.Stock.FindTransactionBySale(ctx, t.SaleID)
			if errors.Is(err, stock.ErrTransactionNotFound) {
				saleID := t.SaleID
				txnID, insertErr := tx.Stock.InsertTransaction(ctx, stock.Transaction{
					Code:      sale.Sale.Code,
					Kind:      stock.KindDelivery,
					SaleID:    &saleID,
					CreatedBy: caller.UserID,
				})
				if insertErr != nil {
					return fmt.Errorf("transport: insert stock transaction: %w", insertErr)
				}
				txn = stock.Transaction{ID: txnID}
			} else if err != nil {
				return err
			}

			lines := make([]stock.LedgerLine, 0, len(sale.Details))
			for _, d := range sale.Details {
				batch := d.BatchNumber
				expiry := d.ExpiryDate
				lines = append(lines, stock.LedgerLine{
					FranchiseID: t.FranchiseID,
					MedicineID:  d.MedicineID,
					BatchNumber: &batch,
					ExpiryDate:  &expiry,
					QtyChange:   d.Quantity,
					Rate:        d.Rate,
					Amount:      d.Amount,
				})
			}
			if err := stock.PostLines(ctx, tx.Stock, txn.ID, lines); err != nil {
				return err
			}
			t.StockPostedAt = &now
			posted = true
		}

		if err := tx.Transports.Save(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return Transport{}, err
	}

	if posted {
		if s.postings != nil {
			s.postings.StockPosted()
		}
		if s.cache != nil {
			s.cache.BumpCache(ctx)
		}
		if s.audit != nil {
			if err := s.audit.Record(ctx, shared.AuditLog{
				ActorID:  caller.UserID,
				Action:   "transport.delivered",
				Entity:   "transport",
				EntityID: strconv.FormatInt(result.ID, 10),
				Meta: map[string]any{
					"sale_id":      result.SaleID,
					"franchise_id": result.FranchiseID,
				},
			}); err != nil {
				s.logger.Warn("delivery audit record failed", "error", err, "transport_id", result.ID)
			}
		}
		s.logger.Info("transport delivered and stock posted",
			"transport_id", result.ID, "sale_id", result.SaleID, "franchise_id", result.FranchiseID)
	}
	return result, nil
}
