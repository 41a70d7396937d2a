package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradejournal/trade"
)

const positionColumns = `
	id, symbol, side, status, entry_date, entry_price, quantity, total_quantity, amount,
	commission, commission_asset, pnl, exit_date, exit_price, synthetic,
	confidence, greed, tags, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (trade.Position, error) {
	var (
		p         trade.Position
		side      string
		status    string
		entryDate int64
		exitDate  sql.NullInt64
		exitPrice decimal.NullDecimal
		tags      string
	)
	err := row.Scan(
		&p.ID, &p.Symbol, &side, &status, &entryDate,
		&p.EntryPrice, &p.Quantity, &p.TotalQuantity, &p.Amount,
		&p.Commission, &p.CommissionAsset, &p.PnL, &exitDate, &exitPrice, &p.Synthetic,
		&p.Confidence, &p.Greed, &tags, &p.Notes,
	)
	if err != nil {
		return trade.Position{}, err
	}

	p.Side = trade.PositionSide(side)
	p.Status = trade.Status(status)
	p.EntryDate = trade.MillisToTime(entryDate)
	if exitDate.Valid {
		t := trade.MillisToTime(exitDate.Int64)
		p.ExitDate = &t
	}
	p.ExitPrice = exitPrice
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return trade.Position{}, fmt.Errorf("decode tags of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// GetPosition returns a single position with its orders and history.
func (j *SQLite) GetPosition(ctx context.Context, positionID string) (trade.Position, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, positionID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trade.Position{}, fmt.Errorf("position %q: %w", positionID, ErrNotFound)
		}
		return trade.Position{}, err
	}
	if err := j.loadDetails(ctx, &p); err != nil {
		return trade.Position{}, err
	}
	return p, nil
}

// ListPositions returns positions matching f, oldest entry first.
func (j *SQLite) ListPositions(ctx context.Context, f Filter) ([]trade.Position, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(f.Symbol))
	}
	if f.Side != "" {
		where = append(where, "side = ?")
		args = append(args, string(f.Side))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "entry_date < ?")
		args = append(args, f.To.UnixMilli())
	}

	q := `SELECT ` + positionColumns + ` FROM positions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY entry_date ASC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return j.queryPositions(ctx, q, args...)
}

// OpenPositions returns every position still carrying quantity.
func (j *SQLite) OpenPositions(ctx context.Context) ([]trade.Position, error) {
	return j.ListPositions(ctx, Filter{Status: trade.Open})
}

// ListPositionsClosedBetween returns positions whose exit date is within [start, end).
func (j *SQLite) ListPositionsClosedBetween(ctx context.Context, start, end time.Time) ([]trade.Position, error) {
	return j.queryPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ? AND exit_date >= ? AND exit_date < ?
		ORDER BY exit_date ASC, id ASC`,
		string(trade.Closed), start.UnixMilli(), end.UnixMilli())
}

// KnownOrderIDs reports which of ids are already stored.
func (j *SQLite) KnownOrderIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	// Stay well under SQLite's bound parameter limit.
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]

		args := make([]any, len(part))
		for i, v := range part {
			args[i] = v
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")

		rows, err := j.db.QueryContext(ctx,
			`SELECT order_id FROM orders WHERE order_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query known orders: %w", err)
		}
		for rows.Next() {
			var oid string
			if err := rows.Scan(&oid); err != nil {
				rows.Close()
				return nil, err
			}
			known[oid] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return known, nil
}

func (j *SQLite) queryPositions(ctx context.Context, q string, args ...any) ([]trade.Position, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}

	var out []trade.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Details are loaded after rows is closed; the pool has one connection.
	for i := range out {
		if err := j.loadDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (j *SQLite) loadDetails(ctx context.Context, p *trade.Position) error {
	hist, err := j.db.QueryContext(ctx, `
		SELECT order_id, action, date, timestamp, quantity, percentage, price, pnl
		FROM position_history
		WHERE position_id = ?
		ORDER BY seq ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("query history of %s: %w", p.ID, err)
	}
	p.History = nil
	for hist.Next() {
		var (
			h      trade.HistoryEntry
			action string
		)
		if err := hist.Scan(&h.OrderID, &action, &h.Date, &h.Timestamp, &h.Quantity, &h.Percentage, &h.Price, &h.PnL); err != nil {
			hist.Close()
			return err
		}
		h.Action = trade.Action(action)
		p.History = append(p.History, h)
	}
	err = hist.Err()
	hist.Close()
	if err != nil {
		return err
	}

	orders, err := j.db.QueryContext(ctx, `
		SELECT order_id, symbol, side, position_side, status, avg_price, executed_qty,
		       commission, commission_asset, reduce_only, time, update_time
		FROM orders
		WHERE position_id = ?
		ORDER BY seq ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("query orders of %s: %w", p.ID, err)
	}
	defer orders.Close()

	p.Orders = nil
	for orders.Next() {
		var (
			o             trade.Order
			side, posSide string
		)
		if err := orders.Scan(&o.OrderID, &o.Symbol, &side, &posSide, &o.Status, &o.AvgPrice, &o.ExecutedQty,
			&o.Commission, &o.CommissionAsset, &o.ReduceOnly, &o.Time, &o.UpdateTime); err != nil {
			return err
		}
		o.Side = trade.Side(side)
		o.PositionSide = trade.PositionSide(posSide)
		p.Orders = append(p.Orders, o)
	}
	return orders.Err()
}
