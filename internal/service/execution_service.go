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
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// ExecutionService records fills. An execution insert, the position
// update and the order fill recompute commit or roll back as one unit.
type ExecutionService struct {
	Repo   repository.Repository
	Orders *OrderService
	Ledger *PositionService
	Audit  audit.Recorder
	Logger *zap.Logger
}

type RecordExecutionInput struct {
	OrderID           uint64          `json:"order_id"`
	ExecutionID       string          `json:"execution_id"`
	BrokerExecutionID string          `json:"broker_execution_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	Commission        decimal.Decimal `json:"commission"`
	Currency          string          `json:"currency"`
	ExecutedAt        time.Time       `json:"executed_at"`
	Exchange          string          `json:"exchange"`
	Liquidity         string          `json:"liquidity"`
	Metadata          map[string]any  `json:"metadata"`
}

// Create validates and records one execution. The order row is locked
// for the whole read-modify-write so concurrent fills against the same
// order serialize instead of racing on filled_quantity.
func (s *ExecutionService) Create(ctx context.Context, scope Scope, in RecordExecutionInput) (*models.Execution, error) {
	if s == nil || s.Repo == nil || s.Orders == nil || s.Ledger == nil {
		return nil, nil
	}
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validationf("execution quantity must be positive, got %s", in.Quantity.String())
	}
	if !in.Price.IsPositive() {
		return nil, apperr.Validationf("execution price must be positive, got %s", in.Price.String())
	}
	if in.Commission.IsNegative() {
		return nil, apperr.Validationf("commission cannot be negative, got %s", in.Commission.String())
	}
	liquidity := strings.ToUpper(strings.TrimSpace(in.Liquidity))
	if liquidity != "" && liquidity != models.LiquidityMaker && liquidity != models.LiquidityTaker {
		return nil, apperr.Validationf("liquidity must be MAKER or TAKER, got %q", in.Liquidity)
	}

	var exec *models.Execution
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Repo.GetOrderForUpdateTx(ctx, tx, scope.TenantID, in.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("order", in.OrderID)
		}
		if !models.OrderStateFillable(order.State) {
			return apperr.InvalidStatef("order %d in state %s cannot accept fills", order.ID, order.State)
		}
		if order.FilledQuantity.Add(in.Quantity).GreaterThan(order.Quantity) {
			metrics.OverfillRejections.Inc()
			return apperr.Validationf("fill of %s would exceed order quantity: %s already filled of %s",
				in.Quantity.String(), order.FilledQuantity.String(), order.Quantity.String())
		}

		executedAt := in.ExecutedAt
		if executedAt.IsZero() {
			executedAt = time.Now().UTC()
		}
		executionID := strings.TrimSpace(in.ExecutionID)
		if executionID == "" {
			executionID = uuid.NewString()
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = "USD"
		}

		e := &models.Execution{
			TenantID:          scope.TenantID,
			OrderID:           order.ID,
			ExecutionID:       executionID,
			BrokerExecutionID: strings.TrimSpace(in.BrokerExecutionID),
			Quantity:          in.Quantity,
			Price:             in.Price,
			Commission:        in.Commission,
			Currency:          currency,
			ExecutedAt:        executedAt,
			Exchange:          strings.TrimSpace(in.Exchange),
			Liquidity:         liquidity,
			CreatedAt:         time.Now().UTC(),
		}
		if len(in.Metadata) > 0 {
			if b, err := json.Marshal(in.Metadata); err == nil {
				e.Metadata = datatypes.JSON(b)
			}
		}
		if err := s.Repo.InsertExecutionTx(ctx, tx, e); err != nil {
			return err
		}
		if _, err := s.Ledger.ApplyFillTx(ctx, tx, order, e); err != nil {
			return err
		}
		if err := s.Orders.RecomputeFillStateTx(ctx, tx, order); err != nil {
			return err
		}
		exec = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ExecutionsRecorded.Inc()
	if s.Audit != nil {
		s.Audit.Record(ctx, audit.Event{
			TenantID:     scope.TenantID,
			UserID:       scope.UserID,
			Action:       audit.ActionExecutionRecord,
			ResourceType: "execution",
			ResourceID:   exec.ID,
			Metadata: map[string]any{
				"order_id": exec.OrderID,
				"quantity": exec.Quantity.String(),
				"price":    exec.Price.String(),
			},
		})
	}
	return exec, nil
}
