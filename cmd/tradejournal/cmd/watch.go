package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/feed"
	"github.com/rustyeddy/tradejournal/reconcile"
	"github.com/rustyeddy/tradejournal/trade"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream unrealized PnL of open positions",
	Long: `Subscribe to mark prices for every symbol with an open position in the
journal and print unrealized PnL as prices move. Stop with Ctrl-C.

Run sync first so the journal knows about your open positions.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	open, err := j.OpenPositions(cmd.Context())
	j.Close()
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	if len(open) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No open positions.")
		return nil
	}

	var symbols []string
	seen := map[string]bool{}
	for _, p := range open {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}

	f := feed.NewMarkPriceFeed(feed.Options{URL: cfg.Feed.URL, Logger: logger})
	ticks := make(chan feed.Tick, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(cmd.Context(), symbols, ticks) }()

	logger.Info("watching open positions", zap.Strings("symbols", symbols), zap.Int("positions", len(open)))
	for {
		select {
		case tick := <-ticks:
			printMarks(cmd.OutOrStdout(), open, tick)
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// printMarks prints one line per open position in tick's symbol.
func printMarks(w io.Writer, open []trade.Position, tick feed.Tick) {
	for _, p := range open {
		if p.Symbol != tick.Symbol {
			continue
		}
		pnl, ok := reconcile.UnrealizedPnL(p, tick.Price)
		if !ok {
			continue
		}
		pct := decimal.Zero
		if cost := p.EntryPrice.Mul(p.Quantity); !cost.IsZero() {
			pct = pnl.Div(cost).Mul(decimal.NewFromInt(100))
		}
		fmt.Fprintf(w, "%s  %-10s %-5s qty %-10s entry %-12s mark %-12s uPnL %s (%s%%)\n",
			tick.Time.Local().Format(time.TimeOnly), p.Symbol, p.Side,
			p.Quantity.String(), p.EntryPrice.String(), tick.Price.String(),
			pnl.StringFixed(2), pct.StringFixed(2))
	}
}
