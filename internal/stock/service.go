package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ClosingStock(ctx context.Context, filter ClosingStockFilter) ([]ClosingStockRow, int, error)
	ListRecalls(ctx context.Context, filter RecallFilter) ([]RecallRow, int, error)
	LedgerStat(ctx context.Context) (LedgerStat, error)
	TryMaintenanceLock(ctx context.Context) (func(context.Context) error, bool, error)
	ReplaceBalances(ctx context.Context, batchSize int) (RebuildResult, error)
	BalanceDrift(ctx context.Context) ([]DriftRow, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns ledger postings, recalls, reporting and maintenance.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  *Cache
	logger *slog.Logger
	flight singleflight.Group
}

// NewService constructs the stock service.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger}
}

const rebuildBatchSize = 1000

// PostLines appends ledger lines for one transaction and applies the same
// deltas to the balance projections. It is the only write path for the
// projections besides the rebuild. Runs on the caller's transaction so a
// delivery confirmation and its postings commit or roll back together.
func PostLines(ctx context.Context, tx TxRepository, transactionID int64, lines []LedgerLine) error {
	for _, line := range lines {
		if line.QtyChange == 0 {
			return ErrInvalidQuantity
		}
		line.TransactionID = transactionID
		if _, err := tx.InsertLedgerLine(ctx, line); err != nil {
			return fmt.Errorf("stock: insert ledger line: %w", err)
		}
		if err := tx.AddToBalance(ctx, line.FranchiseID, line.MedicineID, line.QtyChange); err != nil {
			return fmt.Errorf("stock: apply balance: %w", err)
		}
		if line.BatchNumber != nil && line.ExpiryDate != nil {
			if err := tx.AddToBatchBalance(ctx, line.FranchiseID, line.MedicineID, *line.BatchNumber, *line.ExpiryDate, line.QtyChange); err != nil {
				return fmt.Errorf("stock: apply batch balance: %w", err)
			}
		}
	}
	return nil
}

// RecordRecall removes a batch quantity from a franchise and writes the
// recall audit record. The removal is posted as a negative ledger line so
// the projections stay derivable from the ledger alone.
func (s *Service) RecordRecall(ctx context.Context, input RecallInput) (Recall, error) {
	if input.Quantity <= 0 {
		return Recall{}, ErrInvalidQuantity
	}

	var rec Recall
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bal, err := tx.GetBatchBalanceForUpdate(ctx, input.FranchiseID, input.MedicineID, input.BatchNumber, input.ExpiryDate)
		if err != nil {
			return err
		}
		if bal.Quantity < input.Quantity {
			return ErrInsufficientBatchStock
		}

		txnID, err := tx.InsertTransaction(ctx, Transaction{
			Code:      fmt.Sprintf("RC-%d", time.Now().UnixNano()),
			Kind:      KindRecall,
			Notes:     input.Notes,
			CreatedBy: input.ActorID,
		})
		if err != nil {
			return fmt.Errorf("stock: insert recall transaction: %w", err)
		}

		batch := input.BatchNumber
		expiry := input.ExpiryDate
		line := LedgerLine{
			FranchiseID: input.FranchiseID,
			MedicineID:  input.MedicineID,
			BatchNumber: &batch,
			ExpiryDate:  &expiry,
			QtyChange:   -input.Quantity,
		}
		if err := PostLines(ctx, tx, txnID, []LedgerLine{line}); err != nil {
			return err
		}

		rec = Recall{
			FranchiseID:        input.FranchiseID,
			MedicineID:         input.MedicineID,
			BatchNumber:        input.BatchNumber,
			ExpiryDate:         input.ExpiryDate,
			Quantity:           input.Quantity,
			RecalledAt:         time.Now().UTC(),
			StockTransactionID: txnID,
		}
		id, err := tx.InsertRecall(ctx, rec)
		if err != nil {
			return fmt.Errorf("stock: insert recall: %w", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return Recall{}, err
	}

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock cache bump failed", "error", err)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "stock.recall",
			Entity:   "recall",
			EntityID: strconv.FormatInt(rec.ID, 10),
			Meta: map[string]any{
				"franchise_id": input.FranchiseID,
				"medicine_id":  input.MedicineID,
				"batch_number": input.BatchNumber,
				"quantity":     input.Quantity,
			},
		}); err != nil {
			s.logger.Warn("recall audit record failed", "error", err, "recall_id", rec.ID)
		}
	}
	return rec, nil
}

// ListRecalls returns recall history for reporting.
func (s *Service) ListRecalls(ctx context.Context, filter RecallFilter) ([]RecallRow, int, error) {
	return s.repo.ListRecalls(ctx, filter)
}

type closingStockPayload struct {
	Rows  []ClosingStockRow `json:"rows"`
	Total int               `json:"total"`
}

// ClosingStock serves the closing stock report through the Redis cache.
// Concurrent misses for the same key collapse into one database query.
func (s *Service) ClosingStock(ctx context.Context, filter ClosingStockFilter, page, perPage int) ([]ClosingStockRow, int, error) {
	key, err := s.cache.BuildKey(ctx, keyClosingStock(filter.FranchiseID, filter.Search, page, perPage)...)
	if err != nil {
		s.logger.Warn("closing stock cache key failed", "error", err)
		return s.repo.ClosingStock(ctx, filter)
	}

	var payload closingStockPayload
	err = s.cache.FetchJSON(ctx, key, &payload, func(ctx context.Context) (interface{}, error) {
		value, err, _ := s.flight.Do(key, func() (interface{}, error) {
			rows, total, err := s.repo.ClosingStock(ctx, filter)
			if err != nil {
				return nil, err
			}
			return closingStockPayload{Rows: rows, Total: total}, nil
		})
		if err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return payload.Rows, payload.Total, nil
}

// RebuildBalances wipes and recomputes both balance projections from the
// ledger. Only one rebuild may run at a time; a count and checksum taken
// before and after detect concurrent ledger writes and fail the run loudly
// rather than publish projections of uncertain lineage.
func (s *Service) RebuildBalances(ctx context.Context, actorID int64) (RebuildResult, error) {
	release, ok, err := s.repo.TryMaintenanceLock(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("stock: maintenance lock: %w", err)
	}
	if !ok {
		return RebuildResult{}, ErrRebuildLocked
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Error("maintenance lock release failed", "error", err)
		}
	}()

	before, err := s.repo.LedgerStat(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("stock: ledger stat: %w", err)
	}

	result, err := s.repo.ReplaceBalances(ctx, rebuildBatchSize)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("stock: replace balances: %w", err)
	}

	after, err := s.repo.LedgerStat(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("stock: ledger stat: %w", err)
	}
	if before != after {
		s.logger.Error("ledger changed during rebuild",
			"rows_before", before.Rows, "rows_after", after.Rows,
			"sum_before", before.QtySum, "sum_after", after.QtySum)
		return RebuildResult{}, ErrLedgerChangedDuringRebuild
	}

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock cache bump failed", "error", err)
	}
	s.logger.Info("stock balances rebuilt",
		"balance_rows", result.BalanceRows, "batch_balance_rows", result.BatchBalanceRows)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "stock.rebuild",
			Entity:   "stock_balances",
			EntityID: "all",
			Meta: map[string]any{
				"balance_rows":       result.BalanceRows,
				"batch_balance_rows": result.BatchBalanceRows,
				"ledger_rows":        after.Rows,
			},
		}); err != nil {
			s.logger.Warn("rebuild audit record failed", "error", err)
		}
	}
	return result, nil
}

// IntegrityScan reports every balance row diverging from its ledger sum.
func (s *Service) IntegrityScan(ctx context.Context) ([]DriftRow, error) {
	drift, err := s.repo.BalanceDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("stock: balance drift: %w", err)
	}
	for _, row := range drift {
		s.logger.Warn("stock balance drift detected",
			"franchise_id", row.FranchiseID, "medicine_id", row.MedicineID,
			"ledger_qty", row.LedgerQty, "balance_qty", row.BalanceQty)
	}
	return drift, nil
}

// BumpCache invalidates cached stock reports. Posting paths outside this
// package call it after committing ledger lines.
func (s *Service) BumpCache(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock cache bump failed", "error", err)
	}
}
