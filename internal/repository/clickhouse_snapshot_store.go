package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domrepo "ModelGate/internal/domain/repository"
	pkgch "ModelGate/pkg/clickhouse"
	applogger "ModelGate/pkg/logger"
)

var snapshotSchema = []string{
	`CREATE TABLE IF NOT EXISTS modelgate.predictor_snapshots (
        ts DateTime64(3),
        strategy_id String,
        state String
    ) ENGINE = MergeTree ORDER BY (strategy_id, ts)`,
}

// CHSnapshotStore persists exported predictor state in ClickHouse, one row
// per save; Load returns the most recent snapshot for the strategy.
type CHSnapshotStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHSnapshotStore(ch *pkgch.Client) *CHSnapshotStore {
	return &CHSnapshotStore{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSnapshotStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, snapshotSchema)
}

func (s *CHSnapshotStore) Save(ctx context.Context, strategyID string, state []byte) error {
	const q = `INSERT INTO modelgate.predictor_snapshots (ts, strategy_id, state) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, time.Now(), strategyID, string(state))
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse snapshot save error",
				applogger.String("strategy", strategyID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) Load(ctx context.Context, strategyID string) ([]byte, error) {
	const q = `SELECT state FROM modelgate.predictor_snapshots
        WHERE strategy_id = ? ORDER BY ts DESC LIMIT 1`
	var state string
	if err := s.db.QueryRowContext(ctx, q, strategyID).Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no snapshot for strategy %s", strategyID)
		}
		if s.l != nil {
			s.l.Error("clickhouse snapshot load error",
				applogger.String("strategy", strategyID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(state), nil
}

var _ domrepo.SnapshotStore = (*CHSnapshotStore)(nil)
