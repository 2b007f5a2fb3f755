/**
 * @description
 * Handlers for venue stream messages. Defines the wire shapes for the four
 * subscribed topics (prices, activeUsers, candle, trades) and maps each one to
 * an aggregation-store mutation.
 *
 * Dispatch is a pure routing layer over the store: the same message applied
 * twice leaves the store unchanged (price updates replace, the trade feed
 * deduplicates), so duplicate delivery is safe.
 *
 * @dependencies
 * - encoding/json
 * - backend/internal/models
 */

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/models"
)

// Topic names
const (
	TopicPrices      = "prices"
	TopicActiveUsers = "activeUsers"
	TopicCandle      = "candle"
	TopicTrades      = "trades"
)

// Envelope is used to peek at the topic before full unmarshalling
type Envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// PriceTick is one instrument's update inside a prices message
type PriceTick struct {
	Market      string  `json:"market"`
	MarkPrice   float64 `json:"markPrice"`
	FundingRate float64 `json:"fundingRate"`
}

// ActiveUsersData carries the current users-with-positions set
type ActiveUsersData struct {
	Users []string `json:"users"`
}

// CandleData is one incremental hourly candle update for one instrument
type CandleData struct {
	Market     string  `json:"market"`
	Interval   string  `json:"interval"`
	Time       int64   `json:"t"` // bucket open, ms since epoch
	BaseVolume float64 `json:"v"` // incremental base volume
}

// TradesData carries a batch of fills for one instrument
type TradesData struct {
	Market string      `json:"market"`
	Trades []TradeData `json:"trades"`
}

// TradeData is one fill inside a trades message
type TradeData struct {
	User      string  `json:"user"`
	Side      string  `json:"side"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	ClosedPnl float64 `json:"closedPnl"`
	Time      int64   `json:"time"` // ms since epoch
}

// MarketStore is the mutation surface the handler needs from the store.
type MarketStore interface {
	ApplyPriceUpdate(update models.PriceUpdate)
	SetActiveTraders(count int)
	AddCandleVolume(address string, bucketStart time.Time, baseVolume float64)
	MergeTrades(trades []models.Trade)
}

// Handler routes incoming stream messages into the aggregation store.
type Handler struct {
	store MarketStore
}

// NewHandler creates a message handler over the given store.
func NewHandler(store MarketStore) *Handler {
	return &Handler{store: store}
}

// HandleMessage routes one raw frame to its topic handler. Malformed frames
// return an error; the caller logs and drops them, never crashes.
func (h *Handler) HandleMessage(msg []byte) error {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil
	}

	if msg[0] != '{' {
		text := strings.ToUpper(string(msg))
		switch text {
		case "PING", "PONG":
			return nil
		default:
			logger.Info("stream: ignoring non-JSON frame: %s", text)
			return nil
		}
	}

	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("failed to parse envelope: %w", err)
	}

	switch env.Topic {
	case TopicPrices:
		var ticks []PriceTick
		if err := json.Unmarshal(env.Data, &ticks); err != nil {
			return fmt.Errorf("%s: %w", TopicPrices, err)
		}
		for _, tick := range ticks {
			h.store.ApplyPriceUpdate(models.PriceUpdate{
				Address:     tick.Market,
				MarkPrice:   tick.MarkPrice,
				FundingRate: tick.FundingRate,
			})
		}
		return nil

	case TopicActiveUsers:
		var data ActiveUsersData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("%s: %w", TopicActiveUsers, err)
		}
		// The count is the cardinality of the received set, not an accumulation.
		distinct := make(map[string]struct{}, len(data.Users))
		for _, user := range data.Users {
			distinct[strings.ToLower(user)] = struct{}{}
		}
		h.store.SetActiveTraders(len(distinct))
		return nil

	case TopicCandle:
		var data CandleData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("%s: %w", TopicCandle, err)
		}
		h.store.AddCandleVolume(data.Market, time.UnixMilli(data.Time).UTC(), data.BaseVolume)
		return nil

	case TopicTrades:
		var data TradesData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("%s: %w", TopicTrades, err)
		}
		trades := make([]models.Trade, 0, len(data.Trades))
		for _, t := range data.Trades {
			trades = append(trades, models.Trade{
				Instrument:  data.Market,
				Trader:      t.User,
				Side:        t.Side,
				Size:        t.Size,
				Price:       t.Price,
				Fee:         t.Fee,
				RealizedPnl: t.ClosedPnl,
				Timestamp:   time.UnixMilli(t.Time).UTC(),
			})
		}
		h.store.MergeTrades(trades)
		return nil

	default:
		// Unknown topics are ignored (subscription acks, heartbeats, etc.)
		return nil
	}
}
