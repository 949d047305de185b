package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ModelGate/internal/domain/models"
	drepo "ModelGate/internal/domain/repository"
	applogger "ModelGate/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a SettlementStream over a venue WebSocket feed.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
	l         *applogger.Logger
	metrics   drepo.Metrics
}

// New creates a new settlement stream client.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration) drepo.SettlementStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// SetMetrics injects the metrics recorder.
func (c *Client) SetMetrics(m drepo.Metrics) { c.metrics = m }

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("settlement stream connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	if c.l != nil {
		c.l.Info("settlement stream connected", applogger.String("url", c.websocketURL))
	}
	return nil
}

// Subscribe subscribes to settlement frames for the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("settlement stream not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "channel": "settlements", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		if c.l != nil {
			c.l.Debug("settlement stream subscribed", applogger.String("symbol", s))
		}
	}
	return nil
}

type wsSettlement struct {
	Strategy string  `json:"strategy_id"`
	Policy   string  `json:"policy_id"`
	S        string  `json:"s"`
	R        float64 `json:"r"` // realized return
	T        int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string         `json:"type"`
	Data []wsSettlement `json:"data"`
}

// Read streams OutcomeEvents and errors until ctx is cancelled or the
// connection drops.
func (c *Client) Read(ctx context.Context) (<-chan *models.OutcomeEvent, <-chan error) {
	outcomes := make(chan *models.OutcomeEvent, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(outcomes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("settlement stream conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("settlement stream read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-settlement frames
					continue
				}
				if m.Type != "settlement" {
					continue
				}
				for _, d := range m.Data {
					ev := &models.OutcomeEvent{
						StrategyID:   d.Strategy,
						PolicyID:     d.Policy,
						Symbol:       d.S,
						Timestamp:    d.T / 1000,
						ActualReturn: d.R,
					}
					select {
					case outcomes <- ev:
					default:
						// consumer stalled; the settlement is lost, so
						// make the drop visible
						if c.metrics != nil {
							c.metrics.RecordError("settlement_drop")
						}
						if c.l != nil {
							c.l.Warn("settlement dropped on backpressure",
								applogger.String("symbol", ev.Symbol),
								applogger.String("strategy", ev.StrategyID))
						}
					}
				}
			}
		}
	}()

	return outcomes, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
