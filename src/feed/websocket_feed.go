package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// WebSocketFeed connects to the upstream tick feed, decodes JSON tick frames
// and pushes un-scaled batches downstream. Connection loss triggers an
// exponential backoff reconnect; the live table upstream is never torn down,
// stale-but-present data beats an empty table.
// -----------------------------------------------------------------------------

type WebSocketFeed struct {
	Config *models.MConfig
	Logger *logger.Logger

	tokens atomic.Value // []uint32

	conn   *websocket.Conn
	connMu sync.Mutex

	cancelFunc context.CancelFunc
	isRunning  atomic.Bool
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

// Feed wire format: prices arrive as scaled fixed-point integers and are
// divided out by the configured divisor (e.g. 100 for paise).
type wireTick struct {
	Token        uint32 `json:"token"`
	LastPrice    int64  `json:"last_price"`
	BidPrice     int64  `json:"bid_price,omitempty"`
	AskPrice     int64  `json:"ask_price,omitempty"`
	BidQty       int64  `json:"bid_qty,omitempty"`
	AskQty       int64  `json:"ask_qty,omitempty"`
	OpenInterest int64  `json:"oi,omitempty"`
	Volume       int64  `json:"volume,omitempty"`
	Forward      *int64 `json:"forward,omitempty"`
	LotSize      int    `json:"lot_size,omitempty"`
	TickSize     int64  `json:"tick_size,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"` // Exchange time, unix seconds
}

type wireFrame struct {
	Type  string     `json:"type"`
	Ticks []wireTick `json:"ticks"`
}

// -----------------------------------------------------------------------------

func NewWebSocketFeed(cfg *models.MConfig, log *logger.Logger) *WebSocketFeed {
	f := &WebSocketFeed{
		Config: cfg,
		Logger: log,
	}
	f.tokens.Store([]uint32{})
	return f
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) Name() string {
	return "WebSocketFeed"
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) Start(parentCtx context.Context, outputChan chan<- []models.MRawTick, wg *sync.WaitGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isRunning.Load() {
		return fmt.Errorf("feed %s is already running", f.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	f.cancelFunc = cancel
	f.isRunning.Store(true)

	wg.Add(1)
	go f.runLoop(ctx, outputChan, wg)
	f.Logger.Info("Started feed: %s (%s)", f.Name(), f.Config.Feed.URL)
	return nil
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning.Load() {
		return fmt.Errorf("feed %s is not running", f.Name())
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
	f.closeConn()
	f.isRunning.Store(false)
	f.Logger.Info("Stopped feed: %s", f.Name())
	return nil
}

// -----------------------------------------------------------------------------

// UpdateTokens replaces the subscription set. An open connection is
// re-subscribed immediately; otherwise the set applies on the next connect.
func (f *WebSocketFeed) UpdateTokens(tokens []uint32) error {
	f.tokens.Store(tokens)

	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()

	if conn == nil {
		return nil
	}
	return f.sendSubscribe(conn)
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) runLoop(ctx context.Context, outputChan chan<- []models.MRawTick, wg *sync.WaitGroup) {
	defer wg.Done()

	baseDelay := time.Duration(f.Config.Feed.ReconnectBaseDelay) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	maxDelay := time.Duration(f.Config.Feed.ReconnectMaxDelay) * time.Second
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}

	delay := baseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		err := f.connectAndConsume(ctx, outputChan)
		if ctx.Err() != nil {
			return
		}

		f.Logger.Warning("Feed connection lost: %v. Reconnecting in %v", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) connectAndConsume(ctx context.Context, outputChan chan<- []models.MRawTick) error {
	header := http.Header{}
	if f.Config.Feed.APIKey != "" {
		header.Set("X-Api-Key", f.Config.Feed.APIKey)
	}
	if f.Config.Feed.AccessToken != "" {
		header.Set("Authorization", "token "+f.Config.Feed.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.Config.Feed.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.Config.Feed.URL, err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer f.closeConn()

	if err := f.sendSubscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.Logger.Info("Feed connected, subscribed to %d tokens", len(f.tokens.Load().([]uint32)))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame wireFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			f.Logger.Warning("Dropping undecodable feed frame: %v", err)
			continue
		}
		if len(frame.Ticks) == 0 {
			continue
		}

		batch := make([]models.MRawTick, 0, len(frame.Ticks))
		for _, wt := range frame.Ticks {
			batch = append(batch, f.decodeTick(wt))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case outputChan <- batch:
		}
	}
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) sendSubscribe(conn *websocket.Conn) error {
	msg := models.MSubscribeCommand{
		Command: "subscribe",
		Tokens:  f.tokens.Load().([]uint32),
	}
	return conn.WriteJSON(msg)
}

// -----------------------------------------------------------------------------

// decodeTick un-scales the fixed-point wire fields. Decimal division keeps
// paise exact before entering the float64 analytics path.
func (f *WebSocketFeed) decodeTick(wt wireTick) models.MRawTick {
	divisor := f.Config.Feed.PriceDivisor
	if divisor <= 0 {
		divisor = 1
	}

	tick := models.MRawTick{
		Token:        wt.Token,
		LastPrice:    unscale(wt.LastPrice, divisor),
		BidPrice:     unscale(wt.BidPrice, divisor),
		AskPrice:     unscale(wt.AskPrice, divisor),
		BidQty:       wt.BidQty,
		AskQty:       wt.AskQty,
		OpenInterest: wt.OpenInterest,
		Volume:       wt.Volume,
		LotSize:      wt.LotSize,
		TickSize:     unscale(wt.TickSize, divisor),
	}
	if wt.Forward != nil {
		fwd := unscale(*wt.Forward, divisor)
		tick.Forward = &fwd
	}
	if wt.Timestamp > 0 {
		tick.ExchangeTS = time.Unix(wt.Timestamp, 0).UTC()
	}
	return tick
}

// -----------------------------------------------------------------------------

func unscale(raw, divisor int64) float64 {
	if raw == 0 {
		return 0
	}
	v, _ := decimal.NewFromInt(raw).Div(decimal.NewFromInt(divisor)).Float64()
	return v
}

// -----------------------------------------------------------------------------

func (f *WebSocketFeed) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
