package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/audit"
	"github.com/dunmininu/oms-trading/internal/models"
)

func newExecTestEnv() (*stubRepo, *ExecutionService) {
	repo := newStubRepo()
	repo.addAccount(models.BrokerAccount{
		ID: 2, TenantID: 1, AccountNumber: "ACC-1",
		Status: models.AccountStatusActive, IsActive: true,
	})
	repo.addInstrument(models.Instrument{
		ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true,
	})
	orders := &OrderService{Repo: repo}
	ledger := &PositionService{Repo: repo}
	svc := &ExecutionService{
		Repo:   repo,
		Orders: orders,
		Ledger: ledger,
		Audit:  &audit.DBRecorder{Repo: repo},
	}
	return repo, svc
}

func seedFillableOrder(repo *stubRepo, quantity string) models.Order {
	return repo.addOrder(models.Order{
		TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		ClientOrderID: "exec-ord",
		OrderType:     models.OrderTypeMarket, Side: models.SideBuy,
		Quantity: mustDec(quantity), State: models.OrderStateSubmitted,
	})
}

func TestRecordExecution_UpdatesOrderAndPosition(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := seedFillableOrder(repo, "100")

	exec, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID:    o.ID,
		Quantity:   mustDec("40"),
		Price:      mustDec("10"),
		Commission: mustDec("0.5"),
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if exec.ExecutionID == "" {
		t.Fatalf("execution_id not generated")
	}
	if exec.Currency != "USD" {
		t.Fatalf("currency=%s want=USD", exec.Currency)
	}
	if exec.ExecutedAt.IsZero() {
		t.Fatalf("executed_at not defaulted")
	}

	stored, _ := repo.GetOrderByID(context.Background(), 1, o.ID)
	if stored.State != models.OrderStatePartiallyFilled {
		t.Fatalf("state=%s want=PARTIALLY_FILLED", stored.State)
	}
	if !stored.FilledQuantity.Equal(mustDec("40")) {
		t.Fatalf("filled=%s want=40", stored.FilledQuantity)
	}
	if !stored.Commission.Equal(mustDec("0.5")) {
		t.Fatalf("commission=%s want=0.5", stored.Commission)
	}

	pos, _ := repo.GetPositionForUpdateTx(context.Background(), nil, 1, 2, 3)
	if pos == nil || !pos.Quantity.Equal(mustDec("40")) {
		t.Fatalf("position=%v want quantity 40", pos)
	}
	if len(repo.audits) != 1 || repo.audits[0].Action != audit.ActionExecutionRecord {
		t.Fatalf("audits=%d want one execution.record", len(repo.audits))
	}
}

func TestRecordExecution_FillToExactQuantityIsFilled(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := seedFillableOrder(repo, "100")

	if _, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("40"), Price: mustDec("10"),
	}); err != nil {
		t.Fatalf("first fill: err=%v", err)
	}
	if _, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("60"), Price: mustDec("12"),
	}); err != nil {
		t.Fatalf("second fill: err=%v", err)
	}

	stored, _ := repo.GetOrderByID(context.Background(), 1, o.ID)
	if stored.State != models.OrderStateFilled {
		t.Fatalf("state=%s want=FILLED", stored.State)
	}
	if stored.AveragePrice == nil || !stored.AveragePrice.Equal(mustDec("11.2")) {
		t.Fatalf("avg=%v want=11.2", stored.AveragePrice)
	}
	if stored.FilledAt == nil {
		t.Fatalf("filled_at not set")
	}
}

func TestRecordExecution_OverfillRejected(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := seedFillableOrder(repo, "100")

	_, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("150"), Price: mustDec("10"),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
	if len(repo.executions) != 0 {
		t.Fatalf("executions=%d want=0 after rejection", len(repo.executions))
	}
	stored, _ := repo.GetOrderByID(context.Background(), 1, o.ID)
	if !stored.FilledQuantity.IsZero() {
		t.Fatalf("filled=%s want=0", stored.FilledQuantity)
	}
}

func TestRecordExecution_CumulativeOverfillRejected(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := seedFillableOrder(repo, "100")

	if _, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("80"), Price: mustDec("10"),
	}); err != nil {
		t.Fatalf("first fill: err=%v", err)
	}
	_, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("30"), Price: mustDec("10"),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
	if len(repo.executions) != 1 {
		t.Fatalf("executions=%d want=1", len(repo.executions))
	}
}

func TestRecordExecution_NonFillableStateWinsOverOverfill(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := repo.addOrder(models.Order{
		TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		ClientOrderID: "exec-cxl",
		OrderType:     models.OrderTypeMarket, Side: models.SideBuy,
		Quantity: mustDec("100"), State: models.OrderStateCancelled,
	})
	_, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("150"), Price: mustDec("10"),
	})
	if !apperr.IsInvalidState(err) {
		t.Fatalf("err=%v want invalid_state", err)
	}
}

func TestRecordExecution_OrderNotFound(t *testing.T) {
	_, svc := newExecTestEnv()
	_, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: 404, Quantity: mustDec("10"), Price: mustDec("10"),
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err=%v want not_found", err)
	}
}

func TestRecordExecution_InputValidation(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := seedFillableOrder(repo, "100")

	cases := []RecordExecutionInput{
		{OrderID: o.ID, Quantity: decimal.Zero, Price: mustDec("10")},
		{OrderID: o.ID, Quantity: mustDec("10"), Price: decimal.Zero},
		{OrderID: o.ID, Quantity: mustDec("10"), Price: mustDec("10"), Commission: mustDec("-1")},
		{OrderID: o.ID, Quantity: mustDec("10"), Price: mustDec("10"), Liquidity: "AGGRESSIVE"},
	}
	for i, in := range cases {
		if _, err := svc.Create(context.Background(), testScope(), in); !apperr.IsValidation(err) {
			t.Fatalf("case %d: err=%v want validation", i, err)
		}
	}
}

func TestRecordExecution_SellBuildsShortPosition(t *testing.T) {
	repo, svc := newExecTestEnv()
	o := repo.addOrder(models.Order{
		TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		ClientOrderID: "exec-short",
		OrderType:     models.OrderTypeMarket, Side: models.SideSellShort,
		Quantity: mustDec("50"), State: models.OrderStateSubmitted,
	})
	if _, err := svc.Create(context.Background(), testScope(), RecordExecutionInput{
		OrderID: o.ID, Quantity: mustDec("50"), Price: mustDec("20"),
	}); err != nil {
		t.Fatalf("err=%v", err)
	}
	pos, _ := repo.GetPositionForUpdateTx(context.Background(), nil, 1, 2, 3)
	if pos == nil || !pos.Quantity.Equal(mustDec("-50")) {
		t.Fatalf("position=%v want quantity -50", pos)
	}
	if !pos.AverageCost.Equal(mustDec("20")) {
		t.Fatalf("average_cost=%s want=20", pos.AverageCost)
	}
}
