package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMarkToMarket_Long(t *testing.T) {
	p := &Position{
		Quantity:    decimal.NewFromInt(10),
		AverageCost: decimal.NewFromInt(100),
	}
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	p.MarkToMarket(decimal.NewFromInt(110), at)

	if p.MarketValue == nil || !p.MarketValue.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("market_value=%v want 1100", p.MarketValue)
	}
	if !p.UnrealizedPnL.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unrealized=%s want 100", p.UnrealizedPnL)
	}
	if !p.LastUpdated.Equal(at) {
		t.Fatalf("last_updated=%v want %v", p.LastUpdated, at)
	}
}

func TestMarkToMarket_ShortGainsWhenPriceFalls(t *testing.T) {
	p := &Position{
		Quantity:    decimal.NewFromInt(-5),
		AverageCost: decimal.NewFromInt(50),
	}
	p.MarkToMarket(decimal.NewFromInt(40), time.Now().UTC())

	if !p.UnrealizedPnL.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unrealized=%s want 50", p.UnrealizedPnL)
	}
	if p.MarketValue == nil || !p.MarketValue.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("market_value=%v want -200", p.MarketValue)
	}
}

func TestMarkToMarket_FlatIsZero(t *testing.T) {
	p := &Position{Quantity: decimal.Zero, AverageCost: decimal.NewFromInt(75)}
	p.MarkToMarket(decimal.NewFromInt(80), time.Now().UTC())
	if !p.UnrealizedPnL.IsZero() {
		t.Fatalf("flat position unrealized=%s want 0", p.UnrealizedPnL)
	}
	if p.MarketValue == nil || !p.MarketValue.IsZero() {
		t.Fatalf("flat position market_value=%v want 0", p.MarketValue)
	}
}

func TestNetPnL(t *testing.T) {
	s := &PnLSnapshot{
		TotalRealizedPnL:   decimal.NewFromInt(500),
		TotalUnrealizedPnL: decimal.NewFromInt(-120),
		TotalCommission:    decimal.NewFromInt(30),
	}
	if got := s.NetPnL(); !got.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("net=%s want 350", got)
	}
}
