package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradejournal/binance"
	"github.com/rustyeddy/tradejournal/config"
	"github.com/rustyeddy/tradejournal/journal"
	"github.com/rustyeddy/tradejournal/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tradejournal",
	Short: "A trading journal for Binance USDⓈ-M futures",
	Long: `Tradejournal imports your filled futures orders, rebuilds them into
open and closed positions with realized PnL, and keeps them in a local
SQLite journal you can annotate and export.

It provides tools for:
  - Syncing order history from Binance incrementally
  - Listing, showing and annotating positions
  - Daily reviews in Org-mode
  - CSV and Org exports
  - Watching unrealized PnL of open positions live

Credentials are read from BINANCE_API_KEY and BINANCE_API_SECRET, or from a
.env file in the working directory.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile   string
	envFile   string
	dbPath    string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with BINANCE_API_KEY / BINANCE_API_SECRET")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "path to SQLite journal DB (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json|console (overrides config)")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Journal.DBPath = dbPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	cfg = c

	l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger = l
	return nil
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(cfg.Journal.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func newClient() (*binance.Client, error) {
	timeout, err := cfg.HTTPTimeout()
	if err != nil {
		return nil, err
	}
	delay, err := cfg.RequestDelay()
	if err != nil {
		return nil, err
	}
	return binance.NewClient(binance.Options{
		BaseURL:      cfg.Exchange.BaseURL,
		HTTPTimeout:  timeout,
		RequestDelay: delay,
		PageLimit:    cfg.Exchange.PageLimit,
		Logger:       logger,
	}), nil
}

func requireCredentials() error {
	if !cfg.HasCredentials() {
		return fmt.Errorf("missing credentials: set %s and %s", config.EnvAPIKey, config.EnvAPISecret)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
