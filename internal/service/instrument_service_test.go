package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/client/feed"
	"github.com/dunmininu/oms-trading/internal/models"
)

func feedEnvelope(t *testing.T, raw []byte) feed.Envelope {
	t.Helper()
	var env feed.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope decode: %v", err)
	}
	return env
}

func TestCreateInstrument_DefaultsAndNormalization(t *testing.T) {
	repo := newStubRepo()
	svc := &InstrumentService{Repo: repo}

	item, err := svc.Create(context.Background(), CreateInstrumentInput{
		Symbol:         " msft ",
		Name:           "Microsoft",
		InstrumentType: "stock",
		Exchange:       "NASDAQ",
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if item.Symbol != "MSFT" {
		t.Fatalf("symbol=%q want=MSFT", item.Symbol)
	}
	if item.Currency != "USD" {
		t.Fatalf("currency=%s want=USD", item.Currency)
	}
	if !item.Multiplier.Equal(mustDec("1")) {
		t.Fatalf("multiplier=%s want=1", item.Multiplier)
	}
	if !item.IsActive || !item.IsTradable {
		t.Fatalf("active=%v tradable=%v want both true", item.IsActive, item.IsTradable)
	}
}

func TestCreateInstrument_DuplicateSymbol(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true})
	svc := &InstrumentService{Repo: repo}

	_, err := svc.Create(context.Background(), CreateInstrumentInput{
		Symbol: "AAPL", Name: "Apple", InstrumentType: models.InstrumentTypeStock, Exchange: "NASDAQ",
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestCreateInstrument_OptionFieldRules(t *testing.T) {
	repo := newStubRepo()
	svc := &InstrumentService{Repo: repo}
	exp := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateInstrumentInput{
		Symbol: "AAPL260116C00200000", Name: "AAPL Call",
		InstrumentType: models.InstrumentTypeOption, Exchange: "CBOE",
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("option without strike: err=%v want validation", err)
	}

	_, err = svc.Create(context.Background(), CreateInstrumentInput{
		Symbol: "AAPL260116C00200000", Name: "AAPL Call",
		InstrumentType: "WIDGET", Exchange: "CBOE",
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("bogus type: err=%v want validation", err)
	}

	item, err := svc.Create(context.Background(), CreateInstrumentInput{
		Symbol: "AAPL260116C00200000", Name: "AAPL Call",
		InstrumentType: models.InstrumentTypeOption, Exchange: "CBOE",
		StrikePrice: decPtr("200"), ExpirationDate: &exp, OptionType: models.OptionTypeCall,
	})
	if err != nil {
		t.Fatalf("valid option: err=%v", err)
	}
	if item.OptionType != models.OptionTypeCall {
		t.Fatalf("option_type=%s want=CALL", item.OptionType)
	}

	_, err = svc.Create(context.Background(), CreateInstrumentInput{
		Symbol: "TSLA", Name: "Tesla",
		InstrumentType: models.InstrumentTypeStock, Exchange: "NASDAQ",
		StrikePrice:    decPtr("200"),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("stock with strike: err=%v want validation", err)
	}
}

func TestUpdateInstrument_FieldSubset(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{
		ID: 3, Symbol: "AAPL", Name: "Apple",
		InstrumentType: models.InstrumentTypeStock, Exchange: "NASDAQ",
		IsActive: true, IsTradable: true,
	})
	svc := &InstrumentService{Repo: repo}

	tradable := false
	item, err := svc.Update(context.Background(), 3, UpdateInstrumentInput{
		Name:       strPtr("Apple Inc."),
		IsTradable: &tradable,
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if item.Name != "Apple Inc." {
		t.Fatalf("name=%q want=Apple Inc.", item.Name)
	}
	if item.IsTradable {
		t.Fatalf("tradable=true want=false")
	}
	if item.Exchange != "NASDAQ" {
		t.Fatalf("exchange=%q want unchanged", item.Exchange)
	}
}

func TestUpdateQuote_UnknownSymbol(t *testing.T) {
	svc := &InstrumentService{Repo: newStubRepo()}
	_, err := svc.UpdateQuote(context.Background(), "NOPE", QuoteInput{Last: decPtr("10")})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err=%v want not_found", err)
	}
}

func TestApplyQuote_WritesThrough(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true})
	svc := &InstrumentService{Repo: repo}
	at := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	err := svc.ApplyQuote(context.Background(), "aapl", QuoteInput{
		Last: decPtr("190.5"), Bid: decPtr("190.4"), Ask: decPtr("190.6"), At: at,
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	item, _ := repo.GetInstrumentBySymbol(context.Background(), "AAPL")
	if item.LastPrice == nil || !item.LastPrice.Equal(mustDec("190.5")) {
		t.Fatalf("last=%v want=190.5", item.LastPrice)
	}
	if item.BidPrice == nil || !item.BidPrice.Equal(mustDec("190.4")) {
		t.Fatalf("bid=%v want=190.4", item.BidPrice)
	}
	if item.LastQuoteAt == nil || !item.LastQuoteAt.Equal(at) {
		t.Fatalf("last_quote_at=%v want=%v", item.LastQuoteAt, at)
	}
}

func TestApplyQuote_Validation(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true})
	svc := &InstrumentService{Repo: repo}

	if err := svc.ApplyQuote(context.Background(), "AAPL", QuoteInput{}); !apperr.IsValidation(err) {
		t.Fatalf("empty quote: err=%v want validation", err)
	}
	if err := svc.ApplyQuote(context.Background(), "AAPL", QuoteInput{Last: decPtr("-5")}); !apperr.IsValidation(err) {
		t.Fatalf("negative price: err=%v want validation", err)
	}
}

func TestHandleQuote_AppliesFrameToInstrument(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true})
	stream := &MarketStreamService{
		Repo:        repo,
		Instruments: &InstrumentService{Repo: repo},
	}

	raw := []byte(`{"type":"quote","symbol":"AAPL","bid":"190.40","ask":"190.60","last":190.5,"volume":1200,"ts":"2025-06-02T14:30:00Z"}`)
	stream.handleQuote(feedEnvelope(t, raw), raw)

	item, _ := repo.GetInstrumentBySymbol(context.Background(), "AAPL")
	if item.LastPrice == nil || !item.LastPrice.Equal(mustDec("190.5")) {
		t.Fatalf("last=%v want=190.5", item.LastPrice)
	}
	if item.Volume == nil || !item.Volume.Equal(mustDec("1200")) {
		t.Fatalf("volume=%v want=1200", item.Volume)
	}
	want := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	if item.LastQuoteAt == nil || !item.LastQuoteAt.Equal(want) {
		t.Fatalf("last_quote_at=%v want=%v", item.LastQuoteAt, want)
	}
}

func TestHandleQuote_IgnoresOtherFrameTypes(t *testing.T) {
	repo := newStubRepo()
	repo.addInstrument(models.Instrument{ID: 3, Symbol: "AAPL", IsActive: true, IsTradable: true})
	stream := &MarketStreamService{
		Repo:        repo,
		Instruments: &InstrumentService{Repo: repo},
	}

	raw := []byte(`{"type":"heartbeat"}`)
	stream.handleQuote(feedEnvelope(t, raw), raw)

	item, _ := repo.GetInstrumentBySymbol(context.Background(), "AAPL")
	if item.LastPrice != nil {
		t.Fatalf("last=%v want untouched", item.LastPrice)
	}
}
