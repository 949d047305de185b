package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ModelGate/internal/domain/models"
	domrepo "ModelGate/internal/domain/repository"
	pkgch "ModelGate/pkg/clickhouse"
	applogger "ModelGate/pkg/logger"
)

var eventSchema = []string{
	`CREATE TABLE IF NOT EXISTS modelgate.promotion_events (
        ts DateTime64(3),
        strategy_id String,
        type String,
        from_step Int32,
        to_step Int32,
        notional Float64,
        reason String,
        trade_count Int32,
        cum_pnl Float64,
        max_drawdown Float64
    ) ENGINE = MergeTree ORDER BY (strategy_id, ts)`,
}

// CHEventLog is the durable promotion history, ordered per strategy.
type CHEventLog struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHEventLog(ch *pkgch.Client) *CHEventLog {
	return &CHEventLog{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHEventLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHEventLog) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, eventSchema)
}

func (s *CHEventLog) Append(ctx context.Context, strategyID string, ev models.PromotionEvent) error {
	const q = `INSERT INTO modelgate.promotion_events
        (ts, strategy_id, type, from_step, to_step, notional, reason, trade_count, cum_pnl, max_drawdown)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		ev.Timestamp,
		strategyID,
		string(ev.Type),
		int32(ev.FromStep),
		int32(ev.ToStep),
		ev.Notional,
		ev.Reason,
		int32(ev.Stats.TradeCount),
		ev.Stats.CumPnL,
		ev.Stats.MaxDrawdown,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse promotion_events insert error",
				applogger.String("strategy", strategyID),
				applogger.String("type", string(ev.Type)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append promotion event: %w", err)
	}
	return nil
}

func (s *CHEventLog) List(ctx context.Context, strategyID string, limit int) ([]models.PromotionEvent, error) {
	const q = `SELECT ts, type, from_step, to_step, notional, reason, trade_count, cum_pnl, max_drawdown
        FROM modelgate.promotion_events
        WHERE strategy_id = ?
        ORDER BY ts DESC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, strategyID, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse promotion_events query error",
				applogger.String("strategy", strategyID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("list promotion events: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PromotionEvent, 0, limit)
	for rows.Next() {
		var ev models.PromotionEvent
		var typ string
		var fromStep, toStep, tradeCount int32
		if err := rows.Scan(&ev.Timestamp, &typ, &fromStep, &toStep, &ev.Notional, &ev.Reason,
			&tradeCount, &ev.Stats.CumPnL, &ev.Stats.MaxDrawdown); err != nil {
			return nil, fmt.Errorf("scan promotion event: %w", err)
		}
		ev.Type = models.PromotionEventType(typ)
		ev.FromStep = int(fromStep)
		ev.ToStep = int(toStep)
		ev.Stats.TradeCount = int(tradeCount)
		tmp = append(tmp, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to oldest first
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

var _ domrepo.EventLog = (*CHEventLog)(nil)
