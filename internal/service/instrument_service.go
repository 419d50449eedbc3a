package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// InstrumentService owns the tradable catalog. Instruments are global,
// not tenant-scoped; every tenant trades the same registry.
type InstrumentService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

type CreateInstrumentInput struct {
	Symbol         string           `json:"symbol"`
	Name           string           `json:"name"`
	InstrumentType string           `json:"instrument_type"`
	Exchange       string           `json:"exchange"`
	Currency       string           `json:"currency"`
	Multiplier     *decimal.Decimal `json:"multiplier"`
	StrikePrice    *decimal.Decimal `json:"strike_price"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	OptionType     string           `json:"option_type"`
	MinTickSize    *decimal.Decimal `json:"min_tick_size"`
	MinOrderSize   *decimal.Decimal `json:"min_order_size"`
	MaxOrderSize   *decimal.Decimal `json:"max_order_size"`
	IsTradable     *bool            `json:"is_tradable"`
	Metadata       map[string]any   `json:"metadata"`
}

type UpdateInstrumentInput struct {
	Name         *string          `json:"name"`
	Exchange     *string          `json:"exchange"`
	MinTickSize  *decimal.Decimal `json:"min_tick_size"`
	MinOrderSize *decimal.Decimal `json:"min_order_size"`
	MaxOrderSize *decimal.Decimal `json:"max_order_size"`
	IsActive     *bool            `json:"is_active"`
	IsTradable   *bool            `json:"is_tradable"`
	Metadata     map[string]any   `json:"metadata"`
}

type QuoteInput struct {
	Last   *decimal.Decimal `json:"last"`
	Bid    *decimal.Decimal `json:"bid"`
	Ask    *decimal.Decimal `json:"ask"`
	Volume *decimal.Decimal `json:"volume"`
	At     time.Time        `json:"at"`
}

var validInstrumentTypes = map[string]struct{}{
	models.InstrumentTypeStock:      {},
	models.InstrumentTypeOption:     {},
	models.InstrumentTypeFuture:     {},
	models.InstrumentTypeForex:      {},
	models.InstrumentTypeBond:       {},
	models.InstrumentTypeETF:        {},
	models.InstrumentTypeMutualFund: {},
	models.InstrumentTypeCrypto:     {},
	models.InstrumentTypeOther:      {},
}

func (s *InstrumentService) Create(ctx context.Context, in CreateInstrumentInput) (*models.Instrument, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, apperr.Validationf("symbol is required")
	}
	existing, err := s.Repo.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Validationf("symbol %s already registered", symbol)
	}
	instrumentType := strings.ToUpper(strings.TrimSpace(in.InstrumentType))
	if _, ok := validInstrumentTypes[instrumentType]; !ok {
		return nil, apperr.Validationf("unknown instrument type %q", in.InstrumentType)
	}

	now := time.Now().UTC()
	item := &models.Instrument{
		Symbol:         symbol,
		Name:           strings.TrimSpace(in.Name),
		InstrumentType: instrumentType,
		Exchange:       strings.TrimSpace(in.Exchange),
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		Multiplier:     decimal.NewFromInt(1),
		StrikePrice:    in.StrikePrice,
		ExpirationDate: in.ExpirationDate,
		OptionType:     strings.ToUpper(strings.TrimSpace(in.OptionType)),
		MinTickSize:    decimal.NewFromFloat(0.01),
		MinOrderSize:   decimal.NewFromInt(1),
		MaxOrderSize:   in.MaxOrderSize,
		IsActive:       true,
		IsTradable:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if item.Currency == "" {
		item.Currency = "USD"
	}
	if in.Multiplier != nil && in.Multiplier.IsPositive() {
		item.Multiplier = *in.Multiplier
	}
	if in.MinTickSize != nil && in.MinTickSize.IsPositive() {
		item.MinTickSize = *in.MinTickSize
	}
	if in.MinOrderSize != nil && in.MinOrderSize.IsPositive() {
		item.MinOrderSize = *in.MinOrderSize
	}
	if in.IsTradable != nil {
		item.IsTradable = *in.IsTradable
	}
	if len(in.Metadata) > 0 {
		if b, err := json.Marshal(in.Metadata); err == nil {
			item.Metadata = datatypes.JSON(b)
		}
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := s.Repo.InsertInstrument(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *InstrumentService) Update(ctx context.Context, id uint64, in UpdateInstrumentInput) (*models.Instrument, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	item, err := s.Repo.GetInstrumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("instrument", id)
	}

	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.Exchange != nil {
		item.Exchange = strings.TrimSpace(*in.Exchange)
	}
	if in.MinTickSize != nil {
		if !in.MinTickSize.IsPositive() {
			return nil, apperr.Validationf("min_tick_size must be positive, got %s", in.MinTickSize.String())
		}
		item.MinTickSize = *in.MinTickSize
	}
	if in.MinOrderSize != nil {
		if !in.MinOrderSize.IsPositive() {
			return nil, apperr.Validationf("min_order_size must be positive, got %s", in.MinOrderSize.String())
		}
		item.MinOrderSize = *in.MinOrderSize
	}
	if in.MaxOrderSize != nil {
		item.MaxOrderSize = in.MaxOrderSize
	}
	if in.IsActive != nil {
		item.IsActive = *in.IsActive
	}
	if in.IsTradable != nil {
		item.IsTradable = *in.IsTradable
	}
	if len(in.Metadata) > 0 {
		if b, err := json.Marshal(in.Metadata); err == nil {
			item.Metadata = datatypes.JSON(b)
		}
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.Repo.SaveInstrument(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateQuote applies a mark to a known instrument and returns the
// refreshed row. API path; unknown symbols are an error here.
func (s *InstrumentService) UpdateQuote(ctx context.Context, symbol string, q QuoteInput) (*models.Instrument, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	item, err := s.Repo.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("instrument", symbol)
	}
	if err := s.ApplyQuote(ctx, symbol, q); err != nil {
		return nil, err
	}
	return s.Repo.GetInstrumentBySymbol(ctx, symbol)
}

// ApplyQuote writes a mark without an existence check. Feed path; quotes
// for unknown symbols fall through as no-op row updates.
func (s *InstrumentService) ApplyQuote(ctx context.Context, symbol string, q QuoteInput) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if q.Last == nil && q.Bid == nil && q.Ask == nil && q.Volume == nil {
		return apperr.Validationf("quote carries no fields")
	}
	for _, v := range []*decimal.Decimal{q.Last, q.Bid, q.Ask} {
		if v != nil && !v.IsPositive() {
			return apperr.Validationf("quote prices must be positive, got %s", v.String())
		}
	}
	return s.Repo.UpdateInstrumentQuote(ctx, symbol, repository.QuoteUpdate{
		Last:   q.Last,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Volume: q.Volume,
		At:     q.At,
	})
}
