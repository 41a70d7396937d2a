// Package importer pulls filled orders from the exchange, rebuilds positions
// and stores them in the journal, recording every attempt as a sync run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/binance"
	"github.com/rustyeddy/tradejournal/journal"
	"github.com/rustyeddy/tradejournal/pkg/logging"
	"github.com/rustyeddy/tradejournal/reconcile"
	"github.com/rustyeddy/tradejournal/trade"
)

// DefaultLookback is how far back the first sync reaches.
const DefaultLookback = 30 * 24 * time.Hour

// OrderSource fetches filled orders. *binance.Client satisfies it.
type OrderSource interface {
	FetchFilledOrdersForSymbol(ctx context.Context, apiKey, secretKey, symbol string, startMs, endMs int64) ([]trade.RawOrder, error)
}

// Options tune an Importer. Zero values get defaults.
type Options struct {
	Lookback    time.Duration
	MaxAttempts int
	Symbol      string
	Logger      *zap.Logger
	Now         func() time.Time
	// BackOff paces fetch retries; exponential when nil.
	BackOff backoff.BackOff
}

// Importer runs syncs. It is safe to reuse but not for concurrent syncs
// against the same store.
type Importer struct {
	src        OrderSource
	store      journal.Store
	normalizer *reconcile.Normalizer
	reconciler *reconcile.Reconciler
	opts       Options
	log        *zap.Logger
}

// Report describes a completed sync.
type Report struct {
	Run       journal.SyncRun
	Fetched   int
	Saved     []trade.Position
	Skipped   int
	Anomalies []reconcile.Anomaly
}

func New(src OrderSource, store journal.Store, opts Options) *Importer {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrNop(opts.Logger)
	return &Importer{
		src:        src,
		store:      store,
		normalizer: reconcile.NewNormalizer(log, opts.Now),
		reconciler: reconcile.NewReconciler(log),
		opts:       opts,
		log:        log,
	}
}

// Sync imports everything since the last successful sync. Nothing is
// written to the journal unless the whole fetch succeeds; a failed sync is
// still recorded as a failed run.
func (im *Importer) Sync(ctx context.Context, apiKey, secretKey string) (Report, error) {
	end := im.opts.Now().UTC()
	start, err := im.windowStart(ctx, end)
	if err != nil {
		return Report{}, err
	}

	run, err := im.store.StartSyncRun(ctx, start, end)
	if err != nil {
		return Report{}, err
	}
	im.log.Info("sync started",
		zap.String("run_id", run.ID),
		zap.Time("from", start),
		zap.Time("to", end),
		zap.String("symbol", im.opts.Symbol))

	rep, err := im.sync(ctx, apiKey, secretKey, start, end)
	rep.Run = run
	rep.Run.Orders = rep.Fetched
	rep.Run.Positions = len(rep.Saved)
	rep.Run.Anomalies = len(rep.Anomalies)

	if err != nil {
		rep.Run.Status = journal.SyncFailed
		rep.Run.Error = "sync failed: " + err.Error()
		// The run is finished even if ctx was cancelled mid-sync.
		if ferr := im.store.FinishSyncRun(context.WithoutCancel(ctx), rep.Run); ferr != nil {
			im.log.Error("record failed sync", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		im.log.Error("sync failed", zap.String("run_id", run.ID), zap.Error(err))
		return rep, err
	}

	rep.Run.Status = journal.SyncOK
	if err := im.store.FinishSyncRun(ctx, rep.Run); err != nil {
		return rep, err
	}
	im.log.Info("sync finished",
		zap.String("run_id", run.ID),
		zap.Int("orders", rep.Fetched),
		zap.Int("positions", len(rep.Saved)),
		zap.Int("skipped", rep.Skipped),
		zap.Int("anomalies", len(rep.Anomalies)))
	return rep, nil
}

func (im *Importer) sync(ctx context.Context, apiKey, secretKey string, start, end time.Time) (Report, error) {
	raw, err := im.fetch(ctx, apiKey, secretKey, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return Report{}, err
	}
	rep := Report{Fetched: len(raw)}

	res := im.reconciler.Run(im.normalizer.Normalize(raw))
	rep.Anomalies = res.Anomalies

	positions, skipped, err := im.dropReplayedCloses(ctx, res.Positions)
	if err != nil {
		return rep, err
	}
	rep.Skipped = skipped

	if err := im.store.SavePositions(ctx, positions); err != nil {
		return rep, err
	}
	rep.Saved = positions
	return rep, nil
}

// windowStart is the end of the last successful sync, pulled back to the
// creation time of the oldest order of any open position so its opening
// fills are re-read. The exchange filters allOrders by creation time, which
// for a resting limit order is earlier than its fill.
func (im *Importer) windowStart(ctx context.Context, end time.Time) (time.Time, error) {
	start := end.Add(-im.opts.Lookback)

	last, err := im.store.LastSuccessfulSync(ctx)
	switch {
	case errors.Is(err, journal.ErrNotFound):
	case err != nil:
		return time.Time{}, fmt.Errorf("last sync: %w", err)
	default:
		start = last.WindowEnd
	}

	open, err := im.store.OpenPositions(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("open positions: %w", err)
	}
	for _, p := range open {
		if im.opts.Symbol != "" && p.Symbol != im.opts.Symbol {
			continue
		}
		if earliest := earliestOrder(p); earliest.Before(start) {
			start = earliest
		}
	}

	if start.After(end) {
		start = end
	}
	return start, nil
}

// earliestOrder is the earliest creation time among p's orders, or its
// entry date when that is earlier.
func earliestOrder(p trade.Position) time.Time {
	earliest := p.EntryDate
	for _, o := range p.Orders {
		if o.Time <= 0 {
			continue
		}
		if t := trade.MillisToTime(o.Time); t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

func (im *Importer) fetch(ctx context.Context, apiKey, secretKey string, startMs, endMs int64) ([]trade.RawOrder, error) {
	b := im.opts.BackOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}

	attempt := 0
	op := func() ([]trade.RawOrder, error) {
		attempt++
		orders, err := im.src.FetchFilledOrdersForSymbol(ctx, apiKey, secretKey, im.opts.Symbol, startMs, endMs)
		if err != nil && !binance.IsTemporary(err) {
			return nil, backoff.Permanent(err)
		}
		return orders, err
	}

	orders, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(im.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			im.log.Warn("fetch orders failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch orders after %d attempt(s): %w", attempt, err)
	}
	return orders, nil
}

// dropReplayedCloses removes synthesized positions built from a close the
// journal already holds: the sync window started after its opening fills,
// but the real position was stored by an earlier sync.
func (im *Importer) dropReplayedCloses(ctx context.Context, positions []trade.Position) ([]trade.Position, int, error) {
	var ids []string
	for _, p := range positions {
		if p.Synthetic {
			ids = append(ids, p.OrderIDs()...)
		}
	}
	if len(ids) == 0 {
		return positions, 0, nil
	}

	known, err := im.store.KnownOrderIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]trade.Position, 0, len(positions))
	skipped := 0
	for _, p := range positions {
		if p.Synthetic && allKnown(p.OrderIDs(), known) {
			im.log.Debug("skip already journaled close", zap.String("position_id", p.ID))
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped, nil
}

func allKnown(ids []string, known map[string]bool) bool {
	for _, id := range ids {
		if !known[id] {
			return false
		}
	}
	return len(ids) > 0
}
