package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dunmininu/oms-trading/internal/client/feed"
	"github.com/dunmininu/oms-trading/internal/config"
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// MarketStreamService keeps instrument quotes warm from the broker feed.
// The subscription set tracks tradable instruments and is refreshed while
// the stream is up, so newly listed symbols start ticking without a restart.
type MarketStreamService struct {
	Repo        repository.Repository
	Instruments *InstrumentService
	Logger      *zap.Logger
}

type quoteFrame struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Bid       *decimal.Decimal `json:"bid"`
	Ask       *decimal.Decimal `json:"ask"`
	Last      *decimal.Decimal `json:"last"`
	Volume    *decimal.Decimal `json:"volume"`
	Timestamp string           `json:"ts"`
}

// RunQuoteStream blocks until ctx is cancelled or the stream gives up.
func (s *MarketStreamService) RunQuoteStream(ctx context.Context, cfg config.MarketFeedConfig) error {
	if s == nil || s.Repo == nil || s.Instruments == nil {
		return nil
	}
	maxSymbols := cfg.MaxSymbols
	if maxSymbols <= 0 {
		maxSymbols = 200
	}
	provider := func(ctx context.Context) ([]string, error) {
		return s.Repo.ListTradableSymbols(ctx, maxSymbols)
	}
	stream := feed.NewStream(feed.StreamOptions{
		URL:               cfg.URL,
		SymbolProvider:    provider,
		RefreshInterval:   cfg.RefreshInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            s.Logger,
	})
	return stream.Run(ctx, s.handleQuote)
}

func (s *MarketStreamService) handleQuote(env feed.Envelope, raw []byte) {
	if s == nil || s.Instruments == nil {
		return
	}
	metrics.FeedMessages.Inc()
	if env.Type != "quote" {
		if s.Logger != nil {
			s.Logger.Debug("feed message skipped", zap.String("type", env.Type))
		}
		return
	}
	var frame quoteFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("feed quote decode failed", zap.Error(err))
		}
		return
	}
	if frame.Symbol == "" {
		return
	}

	at := time.Now().UTC()
	if frame.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, frame.Timestamp); err == nil {
			at = parsed.UTC()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Instruments.ApplyQuote(ctx, frame.Symbol, QuoteInput{
		Last:   frame.Last,
		Bid:    frame.Bid,
		Ask:    frame.Ask,
		Volume: frame.Volume,
		At:     at,
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("feed quote apply failed",
			zap.String("symbol", frame.Symbol),
			zap.Error(err))
	}
}
