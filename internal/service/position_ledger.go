package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// ReversalPolicy decides the average cost of the surviving leg when a
// fill pushes a position through zero into the opposite direction.
type ReversalPolicy func(fillPrice, priorAvgCost decimal.Decimal) decimal.Decimal

// ReseedAtFillPrice opens the reversed leg at the fill price. The closed
// leg's economics are already captured in realized P&L, so the new leg
// carries no memory of the old basis.
func ReseedAtFillPrice(fillPrice, _ decimal.Decimal) decimal.Decimal {
	return fillPrice
}

// CarryPriorCost keeps the pre-reversal average cost on the surviving
// leg. Kept for comparison against books produced by systems that never
// re-seed on a flip.
func CarryPriorCost(_, priorAvgCost decimal.Decimal) decimal.Decimal {
	return priorAvgCost
}

// FillEffect is the position delta produced by one fill.
type FillEffect struct {
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	RealizedPnL decimal.Decimal
}

// applyFill computes the position state after a signed fill of delta
// units at price. qty and avgCost are the prior position. RealizedPnL in
// the result is the increment from this fill alone.
func applyFill(qty, avgCost, delta, price decimal.Decimal, reversal ReversalPolicy) FillEffect {
	if reversal == nil {
		reversal = ReseedAtFillPrice
	}
	out := FillEffect{Quantity: qty, AverageCost: avgCost, RealizedPnL: decimal.Zero}
	if delta.IsZero() {
		return out
	}
	newQty := qty.Add(delta)

	// Opening or adding on the same side re-weights the average cost.
	if qty.IsZero() || qty.Sign() == delta.Sign() {
		totalQty := qty.Abs().Add(delta.Abs())
		out.Quantity = newQty
		out.AverageCost = qty.Abs().Mul(avgCost).Add(delta.Abs().Mul(price)).Div(totalQty)
		return out
	}

	// Opposite side: the overlap closes out and realizes P&L.
	closed := decimal.Min(delta.Abs(), qty.Abs())
	if qty.Sign() > 0 {
		out.RealizedPnL = price.Sub(avgCost).Mul(closed)
	} else {
		out.RealizedPnL = avgCost.Sub(price).Mul(closed)
	}

	out.Quantity = newQty
	switch {
	case newQty.IsZero():
		out.AverageCost = decimal.Zero
	case newQty.Sign() == qty.Sign():
		// Partial reduction keeps the basis of the surviving units.
		out.AverageCost = avgCost
	default:
		out.AverageCost = reversal(price, avgCost)
	}
	return out
}

// PositionService owns the position ledger: fill application, marks and
// aggregates. All decimal arithmetic stays in shopspring/decimal.
type PositionService struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Reversal ReversalPolicy
}

// ApplyFillTx folds one execution into the account's position for the
// order's instrument. The caller holds the surrounding transaction and
// has already locked the order row; the position row is locked (or
// created) here. Must only be called inside Repo.InTx.
func (s *PositionService) ApplyFillTx(ctx context.Context, tx *gorm.DB, order *models.Order, exec *models.Execution) (*models.Position, error) {
	if s == nil || s.Repo == nil || order == nil || exec == nil {
		return nil, nil
	}
	sideSign := order.SideSign()
	if sideSign == 0 {
		return nil, apperr.Validationf("order %d has unknown side %q", order.ID, order.Side)
	}
	delta := exec.Quantity.Mul(decimal.NewFromInt(int64(sideSign)))

	pos, err := s.Repo.GetPositionForUpdateTx(ctx, tx, order.TenantID, order.BrokerAccountID, order.InstrumentID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if pos == nil {
		pos = &models.Position{
			TenantID:        order.TenantID,
			BrokerAccountID: order.BrokerAccountID,
			InstrumentID:    order.InstrumentID,
			Quantity:        decimal.Zero,
			AverageCost:     decimal.Zero,
			RealizedPnL:     decimal.Zero,
			UnrealizedPnL:   decimal.Zero,
			LastUpdated:     now,
			CreatedAt:       now,
		}
	}

	eff := applyFill(pos.Quantity, pos.AverageCost, delta, exec.Price, s.Reversal)
	pos.Quantity = eff.Quantity
	pos.AverageCost = eff.AverageCost
	pos.RealizedPnL = pos.RealizedPnL.Add(eff.RealizedPnL)

	// The fill is the freshest price we have; use it as the mark unless a
	// feed has already put a newer one on the row.
	mark := exec.Price
	if pos.MarketPrice != nil && pos.LastUpdated.After(exec.ExecutedAt) {
		mark = *pos.MarketPrice
	}
	pos.MarkToMarket(mark, now)

	if err := s.Repo.SavePositionTx(ctx, tx, pos); err != nil {
		return nil, err
	}
	metrics.FillsApplied.Inc()
	return pos, nil
}

// UpdateMarketValue applies an externally supplied mark to one position.
func (s *PositionService) UpdateMarketValue(ctx context.Context, scope Scope, id uint64, price decimal.Decimal) (*models.Position, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if !price.IsPositive() {
		return nil, apperr.Validationf("market price must be positive, got %s", price)
	}
	pos, err := s.Repo.GetPositionByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, apperr.NotFound("position", id)
	}
	pos.MarkToMarket(price, time.Now().UTC())
	if err := s.Repo.SavePosition(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// RefreshMarks pulls the instruments' latest prices into all open
// positions. Cron-driven; this is the only writer of feed-sourced marks,
// which keeps the quote stream off the position rows' locks.
func (s *PositionService) RefreshMarks(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	items, err := s.Repo.ListOpenPositions(ctx, 500)
	if err != nil || len(items) == 0 {
		return err
	}

	ids := make([]uint64, 0, len(items))
	seen := map[uint64]struct{}{}
	for _, it := range items {
		if _, ok := seen[it.InstrumentID]; ok {
			continue
		}
		seen[it.InstrumentID] = struct{}{}
		ids = append(ids, it.InstrumentID)
	}
	instruments, err := s.Repo.ListInstrumentsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	priceByID := map[uint64]decimal.Decimal{}
	for _, inst := range instruments {
		if inst.LastPrice != nil && inst.LastPrice.IsPositive() {
			priceByID[inst.ID] = *inst.LastPrice
		}
	}

	now := time.Now().UTC()
	refreshed := 0
	for i := range items {
		pos := items[i]
		price, ok := priceByID[pos.InstrumentID]
		if !ok {
			continue
		}
		if pos.MarketPrice != nil && pos.MarketPrice.Equal(price) {
			continue
		}
		pos.MarkToMarket(price, now)
		if err := s.Repo.SavePosition(ctx, &pos); err != nil {
			return err
		}
		refreshed++
	}
	if refreshed > 0 && s.Logger != nil {
		s.Logger.Debug("position marks refreshed", zap.Int("count", refreshed))
	}
	return nil
}

// Summary returns tenant-wide (or account-scoped) open-position totals.
func (s *PositionService) Summary(ctx context.Context, scope Scope, accountID *uint64) (repository.PositionsSummary, error) {
	if s == nil || s.Repo == nil {
		return repository.PositionsSummary{}, nil
	}
	return s.Repo.PositionsSummary(ctx, scope.TenantID, accountID)
}
