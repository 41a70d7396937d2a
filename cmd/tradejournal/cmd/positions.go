package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradejournal/journal"
	"github.com/rustyeddy/tradejournal/trade"
)

var positionsCmd = &cobra.Command{
	Use:     "positions",
	Aliases: []string{"pos"},
	Short:   "Query journaled positions",
	Long: `Query and display positions from the SQLite journal.

Subcommands:
  list    - List positions, optionally filtered
  show    - Show one position with its fills
  today   - Positions closed today
  day     - Positions closed on a specific day
  export  - Export positions as CSV, Org or JSON

Examples:
  tradejournal positions list --status OPEN
  tradejournal positions show BTCUSDT_LONG_8389765
  tradejournal positions day 2024-01-15 --summary
  tradejournal positions export --format csv -o positions.csv`,
}

var positionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List positions",
	Args:  cobra.NoArgs,
	RunE:  runPositionsList,
}

var positionsShowCmd = &cobra.Command{
	Use:   "show <position-id>",
	Short: "Show details of a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositionsShow,
}

var positionsTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List positions closed today",
	Args:  cobra.NoArgs,
	RunE:  runPositionsToday,
}

var positionsDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List positions closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositionsDay,
}

var positionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export positions as CSV, Org or JSON",
	Args:  cobra.NoArgs,
	RunE:  runPositionsExport,
}

var (
	listSymbol string
	listSide   string
	listStatus string
	listFrom   string
	listTo     string
	listLimit  int

	showJSON   bool
	daySummary bool

	exportFormat string
	exportOutput string
)

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.AddCommand(positionsListCmd)
	positionsCmd.AddCommand(positionsShowCmd)
	positionsCmd.AddCommand(positionsTodayCmd)
	positionsCmd.AddCommand(positionsDayCmd)
	positionsCmd.AddCommand(positionsExportCmd)

	for _, c := range []*cobra.Command{positionsListCmd, positionsExportCmd} {
		c.Flags().StringVar(&listSymbol, "symbol", "", "filter by symbol")
		c.Flags().StringVar(&listSide, "side", "", "filter by side: LONG|SHORT")
		c.Flags().StringVar(&listStatus, "status", "", "filter by status: OPEN|CLOSED")
		c.Flags().StringVar(&listFrom, "from", "", "entry date on or after YYYY-MM-DD")
		c.Flags().StringVar(&listTo, "to", "", "entry date before YYYY-MM-DD")
		c.Flags().IntVar(&listLimit, "limit", 0, "maximum number of positions (0 for all)")
	}

	positionsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print JSON instead of Org")
	for _, c := range []*cobra.Command{positionsTodayCmd, positionsDayCmd} {
		c.Flags().BoolVar(&daySummary, "summary", false, "print a day summary instead of each position")
	}

	positionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "export format: csv|org|json")
	positionsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (stdout when empty)")
}

func listFilter() (journal.Filter, error) {
	f := journal.Filter{
		Symbol: strings.ToUpper(strings.TrimSpace(listSymbol)),
		Side:   trade.PositionSide(strings.ToUpper(strings.TrimSpace(listSide))),
		Status: trade.Status(strings.ToUpper(strings.TrimSpace(listStatus))),
		Limit:  listLimit,
	}
	switch f.Side {
	case "", trade.Long, trade.Short:
	default:
		return f, fmt.Errorf("side must be LONG or SHORT, got %q", listSide)
	}
	switch f.Status {
	case "", trade.Open, trade.Closed:
	default:
		return f, fmt.Errorf("status must be OPEN or CLOSED, got %q", listStatus)
	}
	if listFrom != "" {
		start, _, err := dayBounds(time.Local, listFrom)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = start
	}
	if listTo != "" {
		start, _, err := dayBounds(time.Local, listTo)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = start
	}
	return f, nil
}

func runPositionsList(cmd *cobra.Command, args []string) error {
	f, err := listFilter()
	if err != nil {
		return err
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ps, err := j.ListPositions(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	return printPositionTable(cmd.OutOrStdout(), ps)
}

func printPositionTable(w io.Writer, ps []trade.Position) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSIDE\tSTATUS\tENTRY\tENTRY PRICE\tSIZE\tEXIT PRICE\tPNL\tTAGS")
	for _, p := range ps {
		exit := "-"
		if p.ExitPrice.Valid {
			exit = p.ExitPrice.Decimal.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Symbol, p.Side, p.Status,
			p.EntryDate.Local().Format("2006-01-02 15:04"),
			p.EntryPrice.String(), p.TotalQuantity.String(), exit, p.PnL.StringFixed(2),
			strings.Join(p.Tags, ","))
	}
	return tw.Flush()
}

func runPositionsShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	p, err := j.GetPosition(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatPositionOrg(p))
	return nil
}

func runPositionsToday(cmd *cobra.Command, args []string) error {
	return printClosedOn(cmd, time.Now().In(time.Local).Format("2006-01-02"))
}

func runPositionsDay(cmd *cobra.Command, args []string) error {
	return printClosedOn(cmd, args[0])
}

func printClosedOn(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ps, err := j.ListPositionsClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}

	if daySummary {
		out, err := journal.FormatDayOrg(journal.Summarize(start, ps))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatPositionsOrg(ps))
	return nil
}

func runPositionsExport(cmd *cobra.Command, args []string) error {
	f, err := listFilter()
	if err != nil {
		return err
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	ps, err := j.ListPositions(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}

	w := cmd.OutOrStdout()
	if exportOutput != "" {
		file, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutput, err)
		}
		defer file.Close()
		w = file
	}

	switch strings.ToLower(exportFormat) {
	case "csv":
		err = journal.WritePositionsCSV(w, ps)
	case "org":
		_, err = io.WriteString(w, journal.FormatPositionsOrg(ps)+"\n")
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if ps == nil {
			ps = []trade.Position{}
		}
		err = enc.Encode(ps)
	default:
		return fmt.Errorf("unknown format %q (want csv, org or json)", exportFormat)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d position(s) to %s\n", len(ps), exportOutput)
	}
	return nil
}
