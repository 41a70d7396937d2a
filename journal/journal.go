// Package journal persists reconciled positions, their fills and the
// bookkeeping of each sync, and renders them for review.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/tradejournal/trade"
)

// ErrNotFound is returned when a position or sync run does not exist.
var ErrNotFound = errors.New("not found")

// Annotation is a user edit to a position. Nil fields are left unchanged.
type Annotation struct {
	Confidence *int
	Greed      *int
	Tags       []string
	Notes      *string
}

// Filter narrows ListPositions. Zero values match everything; From/To bound
// the entry date as [From, To).
type Filter struct {
	Symbol string
	Side   trade.PositionSide
	Status trade.Status
	From   time.Time
	To     time.Time
	Limit  int
}

// SyncStatus is the outcome of a sync run.
type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncOK      SyncStatus = "ok"
	SyncFailed  SyncStatus = "failed"
)

// SyncRun records one import from the exchange.
type SyncRun struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Status      SyncStatus
	Orders      int
	Positions   int
	Anomalies   int
	Error       string
}

type Store interface {
	SavePositions(ctx context.Context, positions []trade.Position) error
	KnownOrderIDs(ctx context.Context, ids []string) (map[string]bool, error)
	GetPosition(ctx context.Context, id string) (trade.Position, error)
	ListPositions(ctx context.Context, f Filter) ([]trade.Position, error)
	OpenPositions(ctx context.Context) ([]trade.Position, error)
	ListPositionsClosedBetween(ctx context.Context, start, end time.Time) ([]trade.Position, error)
	Annotate(ctx context.Context, id string, a Annotation) error

	StartSyncRun(ctx context.Context, windowStart, windowEnd time.Time) (SyncRun, error)
	FinishSyncRun(ctx context.Context, run SyncRun) error
	LastSuccessfulSync(ctx context.Context) (SyncRun, error)

	Close() error
}
