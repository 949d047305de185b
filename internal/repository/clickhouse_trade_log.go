package repository

import (
	"context"
	"database/sql"
	"time"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	pkgch "ModelGate/pkg/clickhouse"
	applogger "ModelGate/pkg/logger"
)

var shadowSchema = []string{
	`CREATE TABLE IF NOT EXISTS modelgate.shadow_trades (
        ts DateTime64(3),
        strategy_id String,
        symbol String,
        prediction Float64,
        lower_bound Float64,
        upper_bound Float64,
        coverage Float64,
        actual_return Float64,
        has_outcome UInt8,
        within_interval UInt8,
        pnl Float64
    ) ENGINE = MergeTree ORDER BY (strategy_id, ts)`,
	`CREATE TABLE IF NOT EXISTS modelgate.live_trades (
        ts DateTime64(3),
        strategy_id String,
        symbol String,
        side String,
        notional Float64,
        pnl Float64
    ) ENGINE = MergeTree ORDER BY (strategy_id, ts)`,
}

// CHTradeLog implements TradeLog backed by ClickHouse.
type CHTradeLog struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHTradeLog(ch *pkgch.Client) *CHTradeLog {
	return &CHTradeLog{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHTradeLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHTradeLog) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, shadowSchema)
}

func (s *CHTradeLog) LogShadowTrade(ctx context.Context, strategyID string, t *models.ShadowTrade) error {
	const q = `INSERT INTO modelgate.shadow_trades
        (ts, strategy_id, symbol, prediction, lower_bound, upper_bound, coverage, actual_return, has_outcome, within_interval, pnl)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		t.Timestamp,
		strategyID,
		t.Symbol,
		t.Prediction.Prediction,
		t.Prediction.LowerBound,
		t.Prediction.UpperBound,
		t.Prediction.Coverage,
		t.ActualReturn,
		boolToUInt8(t.HasOutcome),
		boolToUInt8(t.WithinInterval),
		t.PnL,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse shadow_trades insert error",
				applogger.String("strategy", strategyID),
				applogger.String("symbol", t.Symbol),
				applogger.Error(err),
			)
		}
		return err
	}
	return nil
}

func (s *CHTradeLog) LogLiveTrade(ctx context.Context, t *models.LiveTradeEvent) error {
	const q = `INSERT INTO modelgate.live_trades
        (ts, strategy_id, symbol, side, notional, pnl)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(t.Timestamp, 0),
		t.StrategyID,
		t.Symbol,
		t.Side,
		t.Notional,
		t.PnL,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse live_trades insert error",
				applogger.String("strategy", t.StrategyID),
				applogger.String("symbol", t.Symbol),
				applogger.Error(err),
			)
		}
		return err
	}
	return nil
}

func (s *CHTradeLog) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHTradeLog) Close() error {
	return nil // connection managed by pkg client
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ domrepo.TradeLog = (*CHTradeLog)(nil)
