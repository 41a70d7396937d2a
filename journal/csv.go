package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradejournal/trade"
)

var csvHeader = []string{
	"id", "symbol", "side", "status", "entry_date", "entry_price", "size", "quantity",
	"exit_date", "exit_price", "pnl", "commission", "commission_asset",
	"confidence", "greed", "tags", "notes", "synthetic",
}

// WritePositionsCSV writes one row per position, with a header row.
func WritePositionsCSV(w io.Writer, positions []trade.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range positions {
		exitDate := ""
		if p.ExitDate != nil {
			exitDate = p.ExitDate.UTC().Format(time.RFC3339)
		}
		exitPrice := ""
		if p.ExitPrice.Valid {
			exitPrice = p.ExitPrice.Decimal.String()
		}

		err := cw.Write([]string{
			p.ID,
			p.Symbol,
			string(p.Side),
			string(p.Status),
			p.EntryDate.UTC().Format(time.RFC3339),
			p.EntryPrice.String(),
			p.TotalQuantity.String(),
			p.Quantity.String(),
			exitDate,
			exitPrice,
			p.PnL.String(),
			p.Commission.String(),
			p.CommissionAsset,
			strconv.Itoa(p.Confidence),
			strconv.Itoa(p.Greed),
			strings.Join(p.Tags, ";"),
			p.Notes,
			strconv.FormatBool(p.Synthetic),
		})
		if err != nil {
			return fmt.Errorf("write position %s: %w", p.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
