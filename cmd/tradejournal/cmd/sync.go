package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradejournal/importer"
	"github.com/rustyeddy/tradejournal/reconcile"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import filled orders and rebuild positions",
	Long: `Fetch filled orders since the last successful sync (or the configured
lookback on first run), rebuild positions and store them in the journal.
Annotations on existing positions are kept.

Examples:
  tradejournal sync
  tradejournal sync --symbol BTCUSDT`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var syncSymbol string

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&syncSymbol, "symbol", "s", "", "only sync this symbol (default from config, all when empty)")
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := requireCredentials(); err != nil {
		return err
	}
	lookback, err := cfg.Lookback()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	symbol := cfg.Sync.Symbol
	if syncSymbol != "" {
		symbol = syncSymbol
	}

	im := importer.New(client, j, importer.Options{
		Lookback:    lookback,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Symbol:      strings.ToUpper(symbol),
		Logger:      logger,
	})

	rep, err := im.Sync(cmd.Context(), cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	open, closed := 0, 0
	for _, p := range rep.Saved {
		if p.IsOpen() {
			open++
		} else {
			closed++
		}
	}
	fmt.Fprintf(out, "✓ Synced %s .. %s\n",
		rep.Run.WindowStart.Local().Format("2006-01-02 15:04"), rep.Run.WindowEnd.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "  Orders:    %d filled\n", rep.Fetched)
	fmt.Fprintf(out, "  Positions: %d saved (%d open, %d closed)\n", len(rep.Saved), open, closed)
	if rep.Skipped > 0 {
		fmt.Fprintf(out, "  Skipped:   %d already journaled\n", rep.Skipped)
	}
	printAnomalies(cmd, rep.Anomalies)
	return nil
}

func printAnomalies(cmd *cobra.Command, anomalies []reconcile.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	counts := map[reconcile.AnomalyKind]int{}
	for _, a := range anomalies {
		counts[a.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	fmt.Fprintln(cmd.OutOrStdout(), "  Anomalies:")
	for _, k := range kinds {
		fmt.Fprintf(cmd.OutOrStdout(), "    %-24s %d\n", k, counts[reconcile.AnomalyKind(k)])
	}
}
