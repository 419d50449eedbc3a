package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/audit"
	"github.com/dunmininu/oms-trading/internal/idempotency"
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// OrderConfig is the lifecycle manager's construction-time configuration.
type OrderConfig struct {
	DefaultTimeInForce string
	MaxBulkItems       int
	MaxOrderQuantity   decimal.Decimal
}

type OrderService struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Audit  audit.Recorder
	Idem   idempotency.Store
	Config OrderConfig
}

type CreateOrderInput struct {
	BrokerAccountID uint64           `json:"broker_account_id"`
	InstrumentID    uint64           `json:"instrument_id"`
	Symbol          string           `json:"symbol"`
	ClientOrderID   string           `json:"client_order_id"`
	OrderType       string           `json:"order_type"`
	Side            string           `json:"side"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	StopPrice       *decimal.Decimal `json:"stop_price"`
	TrailingPercent *decimal.Decimal `json:"trailing_percent"`
	TimeInForce     string           `json:"time_in_force"`
	StrategyRunID   *string          `json:"strategy_run_id"`
	Notes           string           `json:"notes"`
	Metadata        map[string]any   `json:"metadata"`
}

type UpdateOrderInput struct {
	Quantity        *decimal.Decimal `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	StopPrice       *decimal.Decimal `json:"stop_price"`
	TrailingPercent *decimal.Decimal `json:"trailing_percent"`
	TimeInForce     *string          `json:"time_in_force"`
	Notes           *string          `json:"notes"`
}

// StateEvent is a broker-reported lifecycle event applied through the
// transition table.
type StateEvent struct {
	State         string    `json:"state"`
	BrokerOrderID string    `json:"broker_order_id"`
	Reason        string    `json:"reason"`
	RejectCode    string    `json:"reject_code"`
	At            time.Time `json:"at"`
}

type BulkAccepted struct {
	Index    int           `json:"index"`
	OrderID  uint64        `json:"order_id"`
	Order    *models.Order `json:"order,omitempty"`
	Replayed bool          `json:"replayed,omitempty"`
}

type BulkRejected struct {
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
	Replayed bool   `json:"replayed,omitempty"`
}

// BulkResult always carries both partitions, empty or not.
type BulkResult struct {
	Accepted []BulkAccepted `json:"accepted"`
	Rejected []BulkRejected `json:"rejected"`
}

var validOrderTypes = map[string]struct{}{
	models.OrderTypeMarket:            {},
	models.OrderTypeLimit:             {},
	models.OrderTypeStop:              {},
	models.OrderTypeStopLimit:         {},
	models.OrderTypeTrailingStop:      {},
	models.OrderTypeTrailingStopLimit: {},
	models.OrderTypePegged:            {},
	models.OrderTypeAuction:           {},
	models.OrderTypeVolatility:        {},
	models.OrderTypeAdaptive:          {},
}

var validOrderSides = map[string]struct{}{
	models.SideBuy:        {},
	models.SideSell:       {},
	models.SideBuyToCover: {},
	models.SideSellShort:  {},
}

var validTimeInForce = map[string]struct{}{
	models.TimeInForceDay: {},
	models.TimeInForceGTC: {},
	models.TimeInForceIOC: {},
	models.TimeInForceFOK: {},
	models.TimeInForceGTD: {},
	models.TimeInForceOPG: {},
	models.TimeInForceCLS: {},
	models.TimeInForceMOC: {},
	models.TimeInForceLOC: {},
}

var orderTypeNeedsPrice = map[string]struct{}{
	models.OrderTypeLimit:             {},
	models.OrderTypeStopLimit:         {},
	models.OrderTypeTrailingStopLimit: {},
}

var orderTypeNeedsStop = map[string]struct{}{
	models.OrderTypeStop:      {},
	models.OrderTypeStopLimit: {},
}

var orderTypeNeedsTrailing = map[string]struct{}{
	models.OrderTypeTrailingStop:      {},
	models.OrderTypeTrailingStopLimit: {},
}

// validateOrderPricing enforces the conditional field matrix: each
// pricing field is present exactly when the order type calls for it.
func validateOrderPricing(orderType string, price, stopPrice, trailingPercent *decimal.Decimal) error {
	_, needsPrice := orderTypeNeedsPrice[orderType]
	if needsPrice && price == nil {
		return apperr.Validationf("order type %s requires price", orderType)
	}
	if !needsPrice && price != nil {
		return apperr.Validationf("order type %s does not take price", orderType)
	}
	_, needsStop := orderTypeNeedsStop[orderType]
	if needsStop && stopPrice == nil {
		return apperr.Validationf("order type %s requires stop_price", orderType)
	}
	if !needsStop && stopPrice != nil {
		return apperr.Validationf("order type %s does not take stop_price", orderType)
	}
	_, needsTrailing := orderTypeNeedsTrailing[orderType]
	if needsTrailing && trailingPercent == nil {
		return apperr.Validationf("order type %s requires trailing_percent", orderType)
	}
	if !needsTrailing && trailingPercent != nil {
		return apperr.Validationf("order type %s does not take trailing_percent", orderType)
	}

	if price != nil && !price.IsPositive() {
		return apperr.Validationf("price must be positive, got %s", price.String())
	}
	if stopPrice != nil && !stopPrice.IsPositive() {
		return apperr.Validationf("stop_price must be positive, got %s", stopPrice.String())
	}
	if trailingPercent != nil &&
		(!trailingPercent.IsPositive() || trailingPercent.GreaterThan(decimal.NewFromInt(100))) {
		return apperr.Validationf("trailing_percent must be in (0, 100], got %s", trailingPercent.String())
	}
	return nil
}

func newClientOrderID(subdomain string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	subdomain = strings.TrimSpace(strings.ToLower(subdomain))
	if subdomain == "" {
		return "ord_" + id
	}
	return subdomain + "_" + id
}

// Create validates and persists a new order in state NEW. No partial
// order survives a validation failure.
func (s *OrderService) Create(ctx context.Context, scope Scope, in CreateOrderInput) (*models.Order, error) {
	item, err := s.create(ctx, scope, in)
	if err != nil {
		if apperr.IsValidation(err) {
			metrics.OrdersRejected.Inc()
		}
		return nil, err
	}
	s.recordAudit(ctx, scope, audit.ActionOrderCreate, item.ID, map[string]any{
		"client_order_id": item.ClientOrderID,
		"order_type":      item.OrderType,
		"side":            item.Side,
		"quantity":        item.Quantity.String(),
	})
	return item, nil
}

func (s *OrderService) create(ctx context.Context, scope Scope, in CreateOrderInput) (*models.Order, error) {
	orderType := strings.ToUpper(strings.TrimSpace(in.OrderType))
	side := strings.ToUpper(strings.TrimSpace(in.Side))
	tif := strings.ToUpper(strings.TrimSpace(in.TimeInForce))
	if tif == "" {
		tif = strings.ToUpper(strings.TrimSpace(s.Config.DefaultTimeInForce))
	}
	if tif == "" {
		tif = models.TimeInForceDay
	}

	if _, ok := validOrderTypes[orderType]; !ok {
		return nil, apperr.Validationf("unknown order type %q", in.OrderType)
	}
	if _, ok := validOrderSides[side]; !ok {
		return nil, apperr.Validationf("unknown side %q", in.Side)
	}
	if _, ok := validTimeInForce[tif]; !ok {
		return nil, apperr.Validationf("unknown time in force %q", in.TimeInForce)
	}
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validationf("quantity must be positive, got %s", in.Quantity.String())
	}
	if s.Config.MaxOrderQuantity.IsPositive() && in.Quantity.GreaterThan(s.Config.MaxOrderQuantity) {
		return nil, apperr.Validationf("quantity %s exceeds per-order maximum %s",
			in.Quantity.String(), s.Config.MaxOrderQuantity.String())
	}
	if err := validateOrderPricing(orderType, in.Price, in.StopPrice, in.TrailingPercent); err != nil {
		return nil, err
	}

	inst, err := s.resolveInstrument(ctx, in.InstrumentID, in.Symbol)
	if err != nil {
		return nil, err
	}
	if inst.MinOrderSize.IsPositive() && in.Quantity.LessThan(inst.MinOrderSize) {
		return nil, apperr.Validationf("quantity %s below instrument minimum %s",
			in.Quantity.String(), inst.MinOrderSize.String())
	}
	if inst.MaxOrderSize != nil && inst.MaxOrderSize.IsPositive() && in.Quantity.GreaterThan(*inst.MaxOrderSize) {
		return nil, apperr.Validationf("quantity %s above instrument maximum %s",
			in.Quantity.String(), inst.MaxOrderSize.String())
	}

	account, err := s.Repo.GetBrokerAccountByID(ctx, scope.TenantID, in.BrokerAccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("broker account", in.BrokerAccountID)
	}
	if !account.IsActive || account.Status != models.AccountStatusActive {
		return nil, apperr.Validationf("broker account %d is not active", account.ID)
	}

	clientOrderID := strings.TrimSpace(in.ClientOrderID)
	if clientOrderID == "" {
		clientOrderID = newClientOrderID(scope.Subdomain)
	} else {
		existing, err := s.Repo.GetOrderByClientOrderID(ctx, scope.TenantID, clientOrderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Validationf("client_order_id %q already used by order %d", clientOrderID, existing.ID)
		}
	}

	now := time.Now().UTC()
	item := &models.Order{
		TenantID:        scope.TenantID,
		UserID:          scope.UserID,
		BrokerAccountID: account.ID,
		InstrumentID:    inst.ID,
		ClientOrderID:   clientOrderID,
		OrderType:       orderType,
		Side:            side,
		Quantity:        in.Quantity,
		Price:           in.Price,
		StopPrice:       in.StopPrice,
		TrailingPercent: in.TrailingPercent,
		TimeInForce:     tif,
		State:           models.OrderStateNew,
		StrategyRunID:   in.StrategyRunID,
		FilledQuantity:  decimal.Zero,
		Commission:      decimal.Zero,
		Notes:           strings.TrimSpace(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(in.Metadata) > 0 {
		if b, err := json.Marshal(in.Metadata); err == nil {
			item.Metadata = datatypes.JSON(b)
		}
	}

	if err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		return s.Repo.InsertOrderTx(ctx, tx, item)
	}); err != nil {
		return nil, err
	}
	metrics.OrdersCreated.WithLabelValues(orderType).Inc()
	return item, nil
}

func (s *OrderService) resolveInstrument(ctx context.Context, id uint64, symbol string) (*models.Instrument, error) {
	var inst *models.Instrument
	var err error
	switch {
	case id > 0:
		inst, err = s.Repo.GetInstrumentByID(ctx, id)
	case strings.TrimSpace(symbol) != "":
		inst, err = s.Repo.GetInstrumentBySymbol(ctx, symbol)
	default:
		return nil, apperr.Validationf("instrument_id or symbol is required")
	}
	if err != nil {
		return nil, err
	}
	if inst == nil {
		if id > 0 {
			return nil, apperr.NotFound("instrument", id)
		}
		return nil, apperr.NotFound("instrument", strings.ToUpper(strings.TrimSpace(symbol)))
	}
	if !inst.IsActive || !inst.IsTradable {
		return nil, apperr.Validationf("instrument %s is not tradable", inst.Symbol)
	}
	return inst, nil
}

// Update amends price, quantity and time in force on an active order.
// There is no broker round trip behind this; the amendment is a direct
// field mutation under the active-state guard.
func (s *OrderService) Update(ctx context.Context, scope Scope, id uint64, in UpdateOrderInput) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	var item *models.Order
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		o, err := s.Repo.GetOrderForUpdateTx(ctx, tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.NotFound("order", id)
		}
		if !o.IsActive() {
			return apperr.InvalidStatef("order %d in state %s cannot be amended", id, o.State)
		}

		if in.Quantity != nil {
			if !in.Quantity.IsPositive() {
				return apperr.Validationf("quantity must be positive, got %s", in.Quantity.String())
			}
			if in.Quantity.LessThan(o.FilledQuantity) {
				return apperr.Validationf("quantity %s below filled quantity %s",
					in.Quantity.String(), o.FilledQuantity.String())
			}
			if s.Config.MaxOrderQuantity.IsPositive() && in.Quantity.GreaterThan(s.Config.MaxOrderQuantity) {
				return apperr.Validationf("quantity %s exceeds per-order maximum %s",
					in.Quantity.String(), s.Config.MaxOrderQuantity.String())
			}
			o.Quantity = *in.Quantity
		}
		if in.Price != nil {
			o.Price = in.Price
		}
		if in.StopPrice != nil {
			o.StopPrice = in.StopPrice
		}
		if in.TrailingPercent != nil {
			o.TrailingPercent = in.TrailingPercent
		}
		if err := validateOrderPricing(o.OrderType, o.Price, o.StopPrice, o.TrailingPercent); err != nil {
			return err
		}
		if in.TimeInForce != nil {
			tif := strings.ToUpper(strings.TrimSpace(*in.TimeInForce))
			if _, ok := validTimeInForce[tif]; !ok {
				return apperr.Validationf("unknown time in force %q", *in.TimeInForce)
			}
			o.TimeInForce = tif
		}
		if in.Notes != nil {
			o.Notes = strings.TrimSpace(*in.Notes)
		}
		o.UpdatedAt = time.Now().UTC()
		if err := s.Repo.SaveOrderTx(ctx, tx, o); err != nil {
			return err
		}
		item = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, audit.ActionOrderUpdate, item.ID, nil)
	return item, nil
}

// Cancel moves an active order to CANCELLED and stamps cancelled_at.
func (s *OrderService) Cancel(ctx context.Context, scope Scope, id uint64) (*models.Order, error) {
	item, err := s.cancelOne(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, audit.ActionOrderCancel, item.ID, nil)
	return item, nil
}

func (s *OrderService) cancelOne(ctx context.Context, scope Scope, id uint64) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	var item *models.Order
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		o, err := s.Repo.GetOrderForUpdateTx(ctx, tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.NotFound("order", id)
		}
		if !o.IsActive() {
			return apperr.InvalidStatef("order %d in state %s cannot be cancelled", id, o.State)
		}
		now := time.Now().UTC()
		o.State = models.OrderStateCancelled
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
		o.UpdatedAt = now
		if err := s.Repo.SaveOrderTx(ctx, tx, o); err != nil {
			return err
		}
		item = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.OrdersCancelled.Inc()
	metrics.StateTransitions.WithLabelValues(models.OrderStateCancelled).Inc()
	return item, nil
}

// ApplyStateEvent moves an order along the transition table in response
// to a broker-reported event. Timestamps are stamped at most once.
func (s *OrderService) ApplyStateEvent(ctx context.Context, scope Scope, id uint64, ev StateEvent) (*models.Order, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	target := strings.ToUpper(strings.TrimSpace(ev.State))
	if target == "" {
		return nil, apperr.Validationf("state is required")
	}
	known := false
	for _, st := range models.OrderStates() {
		if st == target {
			known = true
			break
		}
	}
	if !known {
		return nil, apperr.Validationf("unknown state %q", ev.State)
	}

	var item *models.Order
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		o, err := s.Repo.GetOrderForUpdateTx(ctx, tx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.NotFound("order", id)
		}
		if !models.CanTransition(o.State, target) {
			return apperr.InvalidStatef("order %d cannot move %s -> %s", id, o.State, target)
		}

		at := ev.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		o.State = target
		switch target {
		case models.OrderStateSubmitted:
			if o.SubmittedAt == nil {
				o.SubmittedAt = &at
			}
		case models.OrderStateCancelled:
			if o.CancelledAt == nil {
				o.CancelledAt = &at
			}
		case models.OrderStateFilled:
			if o.FilledAt == nil {
				o.FilledAt = &at
			}
		case models.OrderStateRejected, models.OrderStateInsufficientFunds,
			models.OrderStateRiskRejected, models.OrderStateComplianceRejected:
			if reason := strings.TrimSpace(ev.Reason); reason != "" {
				o.RejectReason = reason
			}
			if code := strings.TrimSpace(ev.RejectCode); code != "" {
				o.RejectCode = code
			}
		}
		if broker := strings.TrimSpace(ev.BrokerOrderID); broker != "" && o.BrokerOrderID == "" {
			o.BrokerOrderID = broker
		}
		o.UpdatedAt = time.Now().UTC()
		if err := s.Repo.SaveOrderTx(ctx, tx, o); err != nil {
			return err
		}
		item = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.StateTransitions.WithLabelValues(target).Inc()
	s.recordAudit(ctx, scope, audit.ActionOrderStateEvent, item.ID, map[string]any{"state": target})
	return item, nil
}

// RecomputeFillStateTx re-derives filled_quantity, average_price,
// commission and the fill-driven state from the order's executions.
// The caller holds the order's row lock inside tx.
func (s *OrderService) RecomputeFillStateTx(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if s == nil || s.Repo == nil || order == nil {
		return nil
	}
	totals, err := s.Repo.SumExecutionsForOrderTx(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	order.FilledQuantity = totals.Quantity
	if totals.Quantity.IsPositive() {
		avg := totals.Notional.Div(totals.Quantity)
		order.AveragePrice = &avg
	} else {
		order.AveragePrice = nil
	}
	order.Commission = totals.Commission

	now := time.Now().UTC()
	switch {
	case totals.Quantity.IsZero():
		// No fills recorded; state untouched.
	case totals.Quantity.GreaterThanOrEqual(order.Quantity):
		if order.State != models.OrderStateFilled {
			order.State = models.OrderStateFilled
			metrics.StateTransitions.WithLabelValues(models.OrderStateFilled).Inc()
		}
		if order.FilledAt == nil {
			order.FilledAt = &now
		}
	default:
		if order.State != models.OrderStatePartiallyFilled &&
			models.CanTransition(order.State, models.OrderStatePartiallyFilled) {
			order.State = models.OrderStatePartiallyFilled
			metrics.StateTransitions.WithLabelValues(models.OrderStatePartiallyFilled).Inc()
		}
	}
	order.UpdatedAt = now
	return s.Repo.SaveOrderTx(ctx, tx, order)
}

// CreateBulk creates up to Config.MaxBulkItems orders in one call. Items
// fail independently; an idempotency key makes retries replay recorded
// outcomes instead of re-creating.
func (s *OrderService) CreateBulk(ctx context.Context, scope Scope, idempotencyKey string, items []CreateOrderInput) (*BulkResult, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := s.checkBulkSize(len(items)); err != nil {
		return nil, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	out := &BulkResult{Accepted: []BulkAccepted{}, Rejected: []BulkRejected{}}
	for i := range items {
		prior, err := s.lookupOutcome(ctx, scope, idempotencyKey, i)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.replayOutcome(ctx, scope, out, i, prior)
			continue
		}

		item, err := s.create(ctx, scope, items[i])
		if err != nil {
			if apperr.KindOf(err) == "" {
				// Infrastructure failure: abort; recorded outcomes replay on retry.
				return nil, err
			}
			if apperr.IsValidation(err) {
				metrics.OrdersRejected.Inc()
			}
			out.Rejected = append(out.Rejected, BulkRejected{Index: i, Reason: err.Error()})
			s.recordOutcome(ctx, scope, idempotencyKey, i, idempotency.Outcome{
				Status:       models.IdempotencyOutcomeRejected,
				ResourceType: "order",
				Message:      err.Error(),
			})
			continue
		}
		out.Accepted = append(out.Accepted, BulkAccepted{Index: i, OrderID: item.ID, Order: item})
		s.recordOutcome(ctx, scope, idempotencyKey, i, idempotency.Outcome{
			Status:       models.IdempotencyOutcomeAccepted,
			ResourceType: "order",
			ResourceID:   item.ID,
		})
	}
	s.recordAudit(ctx, scope, audit.ActionOrderBulkCreate, 0, map[string]any{
		"items":    len(items),
		"accepted": len(out.Accepted),
		"rejected": len(out.Rejected),
	})
	return out, nil
}

// CancelBulk cancels a list of orders with the same per-item isolation
// and idempotency semantics as CreateBulk.
func (s *OrderService) CancelBulk(ctx context.Context, scope Scope, idempotencyKey string, orderIDs []uint64) (*BulkResult, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := s.checkBulkSize(len(orderIDs)); err != nil {
		return nil, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	out := &BulkResult{Accepted: []BulkAccepted{}, Rejected: []BulkRejected{}}
	for i, id := range orderIDs {
		prior, err := s.lookupOutcome(ctx, scope, idempotencyKey, i)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.replayOutcome(ctx, scope, out, i, prior)
			continue
		}

		item, err := s.cancelOne(ctx, scope, id)
		if err != nil {
			if apperr.KindOf(err) == "" {
				return nil, err
			}
			out.Rejected = append(out.Rejected, BulkRejected{Index: i, Reason: err.Error()})
			s.recordOutcome(ctx, scope, idempotencyKey, i, idempotency.Outcome{
				Status:       models.IdempotencyOutcomeRejected,
				ResourceType: "order",
				ResourceID:   id,
				Message:      err.Error(),
			})
			continue
		}
		out.Accepted = append(out.Accepted, BulkAccepted{Index: i, OrderID: item.ID, Order: item})
		s.recordOutcome(ctx, scope, idempotencyKey, i, idempotency.Outcome{
			Status:       models.IdempotencyOutcomeAccepted,
			ResourceType: "order",
			ResourceID:   item.ID,
		})
	}
	s.recordAudit(ctx, scope, audit.ActionOrderBulkCancel, 0, map[string]any{
		"items":    len(orderIDs),
		"accepted": len(out.Accepted),
		"rejected": len(out.Rejected),
	})
	return out, nil
}

func (s *OrderService) checkBulkSize(n int) error {
	maxItems := s.Config.MaxBulkItems
	if maxItems <= 0 {
		maxItems = 100
	}
	if n == 0 {
		return apperr.Validationf("bulk request requires at least one item")
	}
	if n > maxItems {
		return apperr.Validationf("bulk request limited to %d items, got %d", maxItems, n)
	}
	return nil
}

func (s *OrderService) lookupOutcome(ctx context.Context, scope Scope, key string, index int) (*idempotency.Outcome, error) {
	if s.Idem == nil || key == "" {
		return nil, nil
	}
	return s.Idem.Lookup(ctx, scope.TenantID, key, index)
}

func (s *OrderService) recordOutcome(ctx context.Context, scope Scope, key string, index int, out idempotency.Outcome) {
	if s.Idem == nil || key == "" {
		return
	}
	if err := s.Idem.Record(ctx, scope.TenantID, key, index, out); err != nil && s.Logger != nil {
		s.Logger.Warn("idempotency record failed",
			zap.String("key", key),
			zap.Int("index", index),
			zap.Error(err))
	}
}

func (s *OrderService) replayOutcome(ctx context.Context, scope Scope, out *BulkResult, index int, prior *idempotency.Outcome) {
	if prior.Accepted() {
		acc := BulkAccepted{Index: index, OrderID: prior.ResourceID, Replayed: true}
		if o, err := s.Repo.GetOrderByID(ctx, scope.TenantID, prior.ResourceID); err == nil && o != nil {
			acc.Order = o
		}
		out.Accepted = append(out.Accepted, acc)
		return
	}
	out.Rejected = append(out.Rejected, BulkRejected{Index: index, Reason: prior.Message, Replayed: true})
}

func (s *OrderService) recordAudit(ctx context.Context, scope Scope, action string, resourceID uint64, meta map[string]any) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(ctx, audit.Event{
		TenantID:     scope.TenantID,
		UserID:       scope.UserID,
		Action:       action,
		ResourceType: "order",
		ResourceID:   resourceID,
		Metadata:     meta,
	})
}
