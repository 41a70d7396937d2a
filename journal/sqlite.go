package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/pkg/id"
	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/trade"
)

// SQLite is the Store backed by a single SQLite file.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the journal at path and migrates it.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	log := logging.OrNop(logger)

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, log: log, now: time.Now}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// SavePositions upserts positions with their orders and history in one
// transaction. Annotations already stored for a position are kept.
func (j *SQLite) SavePositions(ctx context.Context, positions []trade.Position) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated := j.now().UnixMilli()
	for _, p := range positions {
		if err := savePosition(ctx, tx, p, updated); err != nil {
			return fmt.Errorf("save position %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	j.log.Debug("saved positions", zap.Int("count", len(positions)))
	return nil
}

func savePosition(ctx context.Context, tx *sql.Tx, p trade.Position, updated int64) error {
	tags, err := json.Marshal(nonNilTags(p.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	var exitDate sql.NullInt64
	if p.ExitDate != nil {
		exitDate = sql.NullInt64{Int64: p.ExitDate.UnixMilli(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions
		(id, symbol, side, status, entry_date, entry_price, quantity, total_quantity, amount,
		 commission, commission_asset, pnl, exit_date, exit_price, synthetic,
		 confidence, greed, tags, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			side = excluded.side,
			status = excluded.status,
			entry_date = excluded.entry_date,
			entry_price = excluded.entry_price,
			quantity = excluded.quantity,
			total_quantity = excluded.total_quantity,
			amount = excluded.amount,
			commission = excluded.commission,
			commission_asset = excluded.commission_asset,
			pnl = excluded.pnl,
			exit_date = excluded.exit_date,
			exit_price = excluded.exit_price,
			synthetic = excluded.synthetic,
			updated_at = excluded.updated_at`,
		p.ID, p.Symbol, string(p.Side), string(p.Status), p.EntryDate.UnixMilli(),
		p.EntryPrice, p.Quantity, p.TotalQuantity, p.Amount,
		p.Commission, p.CommissionAsset, p.PnL, exitDate, p.ExitPrice, p.Synthetic,
		p.Confidence, p.Greed, string(tags), p.Notes, updated,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM position_history WHERE position_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i, h := range p.History {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO position_history
			(position_id, seq, order_id, action, date, timestamp, quantity, percentage, price, pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, h.OrderID, string(h.Action), h.Date, h.Timestamp, h.Quantity, h.Percentage, h.Price, h.PnL,
		)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}

	for i, o := range p.Orders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders
			(order_id, position_id, seq, symbol, side, position_side, status, avg_price, executed_qty,
			 commission, commission_asset, reduce_only, time, update_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(order_id) DO UPDATE SET
				position_id = excluded.position_id,
				seq = excluded.seq,
				status = excluded.status,
				avg_price = excluded.avg_price,
				executed_qty = excluded.executed_qty,
				commission = excluded.commission,
				commission_asset = excluded.commission_asset,
				update_time = excluded.update_time`,
			o.OrderID, p.ID, i, o.Symbol, string(o.Side), string(o.PositionSide), o.Status,
			o.AvgPrice, o.ExecutedQty, o.Commission, o.CommissionAsset, o.ReduceOnly, o.Time, o.UpdateTime,
		)
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", o.OrderID, err)
		}
	}
	return nil
}

// Annotate applies a user edit to the position with the given id.
func (j *SQLite) Annotate(ctx context.Context, positionID string, a Annotation) error {
	var (
		sets []string
		args []any
	)
	if a.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *a.Confidence)
	}
	if a.Greed != nil {
		sets = append(sets, "greed = ?")
		args = append(args, *a.Greed)
	}
	if a.Tags != nil {
		tags, err := json.Marshal(a.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tags))
	}
	if a.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *a.Notes)
	}

	if len(sets) == 0 {
		// Nothing to change, but the position must still exist.
		_, err := j.GetPosition(ctx, positionID)
		return err
	}

	args = append(args, positionID)
	res, err := j.db.ExecContext(ctx,
		`UPDATE positions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", positionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("annotate %s: %w", positionID, err)
	}
	if n == 0 {
		return fmt.Errorf("position %q: %w", positionID, ErrNotFound)
	}
	return nil
}

// StartSyncRun records the beginning of an import covering the window.
func (j *SQLite) StartSyncRun(ctx context.Context, windowStart, windowEnd time.Time) (SyncRun, error) {
	run := SyncRun{
		ID:          id.New(),
		StartedAt:   j.now().UTC(),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Status:      SyncRunning,
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, window_start, window_end, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.WindowStart.UnixMilli(), run.WindowEnd.UnixMilli(), string(run.Status),
	)
	if err != nil {
		return SyncRun{}, fmt.Errorf("start sync run: %w", err)
	}
	return run, nil
}

// FinishSyncRun stores the outcome of run. A run still marked running is
// recorded as ok.
func (j *SQLite) FinishSyncRun(ctx context.Context, run SyncRun) error {
	if run.Status == "" || run.Status == SyncRunning {
		run.Status = SyncOK
	}
	finished := j.now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET finished_at = ?, status = ?, orders_fetched = ?, positions_saved = ?, anomalies = ?, error = ?
		WHERE id = ?`,
		finished.UnixMilli(), string(run.Status), run.Orders, run.Positions, run.Anomalies, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync run %q: %w", run.ID, ErrNotFound)
	}
	return nil
}

// LastSuccessfulSync returns the successful run with the latest window end.
func (j *SQLite) LastSuccessfulSync(ctx context.Context) (SyncRun, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, window_start, window_end, status,
		       orders_fetched, positions_saved, anomalies, error
		FROM sync_runs
		WHERE status = ?
		ORDER BY window_end DESC, started_at DESC
		LIMIT 1`, string(SyncOK))

	var (
		run                             SyncRun
		started, windowStart, windowEnd int64
		finished                        sql.NullInt64
		status                          string
	)
	err := row.Scan(&run.ID, &started, &finished, &windowStart, &windowEnd, &status,
		&run.Orders, &run.Positions, &run.Anomalies, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncRun{}, fmt.Errorf("successful sync run: %w", ErrNotFound)
		}
		return SyncRun{}, err
	}
	run.StartedAt = trade.MillisToTime(started)
	run.WindowStart = trade.MillisToTime(windowStart)
	run.WindowEnd = trade.MillisToTime(windowEnd)
	run.Status = SyncStatus(status)
	if finished.Valid {
		t := trade.MillisToTime(finished.Int64)
		run.FinishedAt = &t
	}
	return run, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
