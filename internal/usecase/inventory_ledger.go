package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

// ErrReservationContention is wrapped by the Conflict error returned when a product's version
// kept moving for every reservation attempt.
var ErrReservationContention = errors.New("stock reservation contention")

// InventoryLedger reserves stock with conditional writes against the repository it is given,
// which is always bound to the caller's transaction.
type InventoryLedger struct {
	maxAttempts int
	backoff     time.Duration
	log         *logrus.Logger
}

func NewInventoryLedger(maxAttempts int, backoff time.Duration, logger *logrus.Logger) *InventoryLedger {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &InventoryLedger{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         logger,
	}
}

// CheckAndReserve decrements stock for every line or for none of them. Lines are reserved in
// ascending product id order. The returned lines carry the name and price of the row each decrement wrote.
func (l *InventoryLedger) CheckAndReserve(ctx context.Context, products domain.ProductRepository, lines []domain.RequestedLine) ([]domain.ReservedLine, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(merged))
	for i, line := range merged {
		ids[i] = line.ProductID
	}
	records, err := products.GetStock(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.StockRecord, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
	}

	var shortages []domain.Shortage
	for _, line := range merged {
		rec, ok := byID[line.ProductID]
		if !ok {
			l.log.Warnf("InventoryLedger: Product %d not found", line.ProductID)
			return nil, domain.NotFound("product with id %d not found", line.ProductID)
		}
		if rec.Stock < line.Quantity {
			shortages = append(shortages, domain.Shortage{
				ProductID:   rec.ProductID,
				ProductName: rec.Name,
				Requested:   line.Quantity,
				Available:   rec.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		l.log.Infof("InventoryLedger: Rejecting reservation, %d product(s) short", len(shortages))
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	reserved := make([]domain.ReservedLine, 0, len(merged))
	for _, line := range merged {
		r, err := l.reserveLine(ctx, products, line, byID[line.ProductID])
		if err != nil {
			return nil, err
		}
		reserved = append(reserved, r)
	}
	l.log.Debugf("InventoryLedger: Reserved %d line(s)", len(reserved))
	return reserved, nil
}

func (l *InventoryLedger) reserveLine(ctx context.Context, products domain.ProductRepository, line domain.RequestedLine, rec domain.StockRecord) (domain.ReservedLine, error) {
	for attempt := 1; ; attempt++ {
		written, err := products.DecrementStock(ctx, line.ProductID, line.Quantity, rec.Version)
		if err != nil {
			return domain.ReservedLine{}, err
		}
		if written != nil {
			return domain.ReservedLine{
				ProductID:   written.ProductID,
				ProductName: written.Name,
				Quantity:    line.Quantity,
				Price:       written.Price,
			}, nil
		}
		if attempt >= l.maxAttempts {
			l.log.Warnf("InventoryLedger: Giving up on product %d after %d attempts", line.ProductID, attempt)
			return domain.ReservedLine{}, domain.Conflict(ErrReservationContention,
				"product %d is being updated concurrently, retry the request", line.ProductID)
		}

		if err := sleepCtx(ctx, l.backoff*time.Duration(attempt)); err != nil {
			return domain.ReservedLine{}, domain.Conflict(err, "reservation of product %d interrupted", line.ProductID)
		}

		fresh, err := products.GetStock(ctx, []int64{line.ProductID})
		if err != nil {
			return domain.ReservedLine{}, err
		}
		if len(fresh) == 0 {
			return domain.ReservedLine{}, domain.NotFound("product with id %d not found", line.ProductID)
		}
		rec = fresh[0]
		if rec.Stock < line.Quantity {
			return domain.ReservedLine{}, &domain.InsufficientStockError{Shortages: []domain.Shortage{{
				ProductID:   rec.ProductID,
				ProductName: rec.Name,
				Requested:   line.Quantity,
				Available:   rec.Stock,
			}}}
		}
		l.log.Debugf("InventoryLedger: Retrying product %d at version %d (attempt %d)", line.ProductID, rec.Version, attempt+1)
	}
}

// mergeLines validates lines, sums quantities of repeated products and sorts by product id.
// Every line and every merged sum stays within domain.MaxLineQuantity.
func mergeLines(lines []domain.RequestedLine) ([]domain.RequestedLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	totals := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, domain.InvalidState("invalid product id %d", line.ProductID)
		}
		if line.Quantity < 1 {
			return nil, domain.InvalidState("quantity for product %d must be at least 1", line.ProductID)
		}
		if line.Quantity > domain.MaxLineQuantity || totals[line.ProductID] > domain.MaxLineQuantity-line.Quantity {
			return nil, domain.InvalidState("quantity for product %d must be at most %d", line.ProductID, domain.MaxLineQuantity)
		}
		totals[line.ProductID] += line.Quantity
	}
	merged := make([]domain.RequestedLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, domain.RequestedLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
