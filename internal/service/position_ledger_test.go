package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunmininu/oms-trading/internal/models"
)

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyFill_OpenFromFlat(t *testing.T) {
	eff := applyFill(decimal.Zero, decimal.Zero, mustDec("100"), mustDec("10"), nil)
	if !eff.Quantity.Equal(mustDec("100")) {
		t.Fatalf("quantity=%s want=100", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("average_cost=%s want=10", eff.AverageCost)
	}
	if !eff.RealizedPnL.IsZero() {
		t.Fatalf("realized=%s want=0", eff.RealizedPnL)
	}
}

func TestApplyFill_AddSameSideReweightsAverage(t *testing.T) {
	// 100 @ 10 plus 50 @ 13 averages to 11.
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("50"), mustDec("13"), nil)
	if !eff.Quantity.Equal(mustDec("150")) {
		t.Fatalf("quantity=%s want=150", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("11")) {
		t.Fatalf("average_cost=%s want=11", eff.AverageCost)
	}
	if !eff.RealizedPnL.IsZero() {
		t.Fatalf("realized=%s want=0", eff.RealizedPnL)
	}
}

func TestApplyFill_AddToShortReweightsAverage(t *testing.T) {
	eff := applyFill(mustDec("-100"), mustDec("10"), mustDec("-50"), mustDec("13"), nil)
	if !eff.Quantity.Equal(mustDec("-150")) {
		t.Fatalf("quantity=%s want=-150", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("11")) {
		t.Fatalf("average_cost=%s want=11", eff.AverageCost)
	}
}

func TestApplyFill_ReduceLongRealizesGain(t *testing.T) {
	// Selling 40 of a 100 @ 10 long at 12 realizes (12-10)*40 = 80 and
	// keeps the surviving basis.
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("-40"), mustDec("12"), nil)
	if !eff.Quantity.Equal(mustDec("60")) {
		t.Fatalf("quantity=%s want=60", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("average_cost=%s want=10", eff.AverageCost)
	}
	if !eff.RealizedPnL.Equal(mustDec("80")) {
		t.Fatalf("realized=%s want=80", eff.RealizedPnL)
	}
}

func TestApplyFill_ReduceShortRealizesGain(t *testing.T) {
	// Covering 40 of a 100-short opened at 10 by buying at 8 realizes
	// (10-8)*40 = 80.
	eff := applyFill(mustDec("-100"), mustDec("10"), mustDec("40"), mustDec("8"), nil)
	if !eff.Quantity.Equal(mustDec("-60")) {
		t.Fatalf("quantity=%s want=-60", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("average_cost=%s want=10", eff.AverageCost)
	}
	if !eff.RealizedPnL.Equal(mustDec("80")) {
		t.Fatalf("realized=%s want=80", eff.RealizedPnL)
	}
}

func TestApplyFill_ReduceLongRealizesLoss(t *testing.T) {
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("-40"), mustDec("7"), nil)
	if !eff.RealizedPnL.Equal(mustDec("-120")) {
		t.Fatalf("realized=%s want=-120", eff.RealizedPnL)
	}
}

func TestApplyFill_CloseExactZeroesAverage(t *testing.T) {
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("-100"), mustDec("12"), nil)
	if !eff.Quantity.IsZero() {
		t.Fatalf("quantity=%s want=0", eff.Quantity)
	}
	if !eff.AverageCost.IsZero() {
		t.Fatalf("average_cost=%s want=0", eff.AverageCost)
	}
	if !eff.RealizedPnL.Equal(mustDec("200")) {
		t.Fatalf("realized=%s want=200", eff.RealizedPnL)
	}
}

func TestApplyFill_OvershootFlipsAndReseedsAtFillPrice(t *testing.T) {
	// Selling 150 against a 100 @ 10 long closes the 100 (realizing 200)
	// and opens a 50-short carried at the fill price.
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("-150"), mustDec("12"), ReseedAtFillPrice)
	if !eff.Quantity.Equal(mustDec("-50")) {
		t.Fatalf("quantity=%s want=-50", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("12")) {
		t.Fatalf("average_cost=%s want=12", eff.AverageCost)
	}
	if !eff.RealizedPnL.Equal(mustDec("200")) {
		t.Fatalf("realized=%s want=200", eff.RealizedPnL)
	}
}

func TestApplyFill_OvershootWithCarryPriorCost(t *testing.T) {
	eff := applyFill(mustDec("100"), mustDec("10"), mustDec("-150"), mustDec("12"), CarryPriorCost)
	if !eff.Quantity.Equal(mustDec("-50")) {
		t.Fatalf("quantity=%s want=-50", eff.Quantity)
	}
	if !eff.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("average_cost=%s want=10", eff.AverageCost)
	}
	if !eff.RealizedPnL.Equal(mustDec("200")) {
		t.Fatalf("realized=%s want=200", eff.RealizedPnL)
	}
}

func TestApplyFill_ZeroDeltaNoChange(t *testing.T) {
	eff := applyFill(mustDec("100"), mustDec("10"), decimal.Zero, mustDec("12"), nil)
	if !eff.Quantity.Equal(mustDec("100")) || !eff.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("quantity=%s average_cost=%s want unchanged", eff.Quantity, eff.AverageCost)
	}
}

func TestApplyFillTx_CreatesPositionLazily(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}

	order := &models.Order{
		ID: 9, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Side: models.SideBuy, Quantity: mustDec("100"),
	}
	exec := &models.Execution{
		TenantID: 1, OrderID: 9,
		Quantity: mustDec("100"), Price: mustDec("10"),
		ExecutedAt: time.Now().UTC(),
	}
	pos, err := svc.ApplyFillTx(context.Background(), nil, order, exec)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if pos == nil {
		t.Fatalf("position=nil")
	}
	if !pos.Quantity.Equal(mustDec("100")) {
		t.Fatalf("quantity=%s want=100", pos.Quantity)
	}
	if !pos.AverageCost.Equal(mustDec("10")) {
		t.Fatalf("average_cost=%s want=10", pos.AverageCost)
	}
	stored, err := repo.GetPositionForUpdateTx(context.Background(), nil, 1, 2, 3)
	if err != nil || stored == nil {
		t.Fatalf("stored=%v err=%v", stored, err)
	}
	if !stored.Quantity.Equal(mustDec("100")) {
		t.Fatalf("stored quantity=%s want=100", stored.Quantity)
	}
}

func TestApplyFillTx_SellSubtractsAndAccumulatesRealized(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}
	now := time.Now().UTC()

	repo.positions[positionKey(1, 2, 3)] = models.Position{
		ID: 7, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Quantity: mustDec("100"), AverageCost: mustDec("10"),
		RealizedPnL: mustDec("5"), LastUpdated: now.Add(-time.Hour),
	}
	order := &models.Order{
		ID: 9, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Side: models.SideSell, Quantity: mustDec("40"),
	}
	exec := &models.Execution{
		TenantID: 1, OrderID: 9,
		Quantity: mustDec("40"), Price: mustDec("12"),
		ExecutedAt: now,
	}
	pos, err := svc.ApplyFillTx(context.Background(), nil, order, exec)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !pos.Quantity.Equal(mustDec("60")) {
		t.Fatalf("quantity=%s want=60", pos.Quantity)
	}
	if !pos.RealizedPnL.Equal(mustDec("85")) {
		t.Fatalf("realized=%s want=85", pos.RealizedPnL)
	}
	// The fill price becomes the mark: unrealized = (12-10)*60.
	if !pos.UnrealizedPnL.Equal(mustDec("120")) {
		t.Fatalf("unrealized=%s want=120", pos.UnrealizedPnL)
	}
}

func TestApplyFillTx_KeepsNewerFeedMark(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}
	now := time.Now().UTC()
	feedMark := mustDec("15")

	repo.positions[positionKey(1, 2, 3)] = models.Position{
		ID: 7, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Quantity: mustDec("100"), AverageCost: mustDec("10"),
		MarketPrice: &feedMark, LastUpdated: now,
	}
	order := &models.Order{
		ID: 9, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Side: models.SideBuy, Quantity: mustDec("50"),
	}
	exec := &models.Execution{
		TenantID: 1, OrderID: 9,
		Quantity: mustDec("50"), Price: mustDec("13"),
		ExecutedAt: now.Add(-time.Minute),
	}
	pos, err := svc.ApplyFillTx(context.Background(), nil, order, exec)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if pos.MarketPrice == nil || !pos.MarketPrice.Equal(feedMark) {
		t.Fatalf("market_price=%v want=15", pos.MarketPrice)
	}
}

func TestUpdateMarketValue_FlatPositionZeroes(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}

	repo.positions[positionKey(1, 2, 3)] = models.Position{
		ID: 7, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Quantity: decimal.Zero, AverageCost: decimal.Zero,
	}
	pos, err := svc.UpdateMarketValue(context.Background(), Scope{TenantID: 1}, 7, mustDec("20"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if pos.MarketValue == nil || !pos.MarketValue.IsZero() {
		t.Fatalf("market_value=%v want=0", pos.MarketValue)
	}
	if !pos.UnrealizedPnL.IsZero() {
		t.Fatalf("unrealized=%s want=0", pos.UnrealizedPnL)
	}
}

func TestUpdateMarketValue_ShortPosition(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}

	repo.positions[positionKey(1, 2, 3)] = models.Position{
		ID: 7, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Quantity: mustDec("-100"), AverageCost: mustDec("10"),
	}
	pos, err := svc.UpdateMarketValue(context.Background(), Scope{TenantID: 1}, 7, mustDec("8"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// Short 100 from 10 marked at 8: unrealized = (8-10)*(-100) = 200.
	if !pos.UnrealizedPnL.Equal(mustDec("200")) {
		t.Fatalf("unrealized=%s want=200", pos.UnrealizedPnL)
	}
	if pos.MarketValue == nil || !pos.MarketValue.Equal(mustDec("-800")) {
		t.Fatalf("market_value=%v want=-800", pos.MarketValue)
	}
}

func TestUpdateMarketValue_RejectsNonPositivePrice(t *testing.T) {
	svc := &PositionService{Repo: newStubRepo()}
	_, err := svc.UpdateMarketValue(context.Background(), Scope{TenantID: 1}, 7, decimal.Zero)
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRefreshMarks_PullsInstrumentPrices(t *testing.T) {
	repo := newStubRepo()
	svc := &PositionService{Repo: repo}
	last := mustDec("42")

	repo.addInstrument(models.Instrument{
		ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true, LastPrice: &last,
	})
	repo.positions[positionKey(1, 2, 3)] = models.Position{
		ID: 7, TenantID: 1, BrokerAccountID: 2, InstrumentID: 3,
		Quantity: mustDec("10"), AverageCost: mustDec("40"),
	}
	if err := svc.RefreshMarks(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	pos, _ := repo.GetPositionForUpdateTx(context.Background(), nil, 1, 2, 3)
	if pos.MarketPrice == nil || !pos.MarketPrice.Equal(last) {
		t.Fatalf("market_price=%v want=42", pos.MarketPrice)
	}
	if !pos.UnrealizedPnL.Equal(mustDec("20")) {
		t.Fatalf("unrealized=%s want=20", pos.UnrealizedPnL)
	}
}
