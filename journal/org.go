package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradejournal/trade"
)

// FormatPositionOrg renders a position as an Org-mode block suitable for
// pasting into a journal. Structured facts go in a PROPERTIES drawer; the
// fills become a table and the user's notes the narrative sections.
func FormatPositionOrg(p trade.Position) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", p.Symbol, p.Side, p.Status, shortID(p.ID))
	if len(p.Tags) > 0 {
		heading += "  :" + strings.Join(p.Tags, ":") + ":"
	}

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", p.ID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", p.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", p.Side))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", p.Status))
	b.WriteString(fmt.Sprintf(":ENTRY_DATE: %s\n", p.EntryDate.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %s\n", p.EntryPrice.String()))
	b.WriteString(fmt.Sprintf(":SIZE: %s\n", p.TotalQuantity.String()))
	if p.IsOpen() {
		b.WriteString(fmt.Sprintf(":QUANTITY: %s\n", p.Quantity.String()))
	}
	if p.ExitDate != nil {
		b.WriteString(fmt.Sprintf(":EXIT_DATE: %s\n", p.ExitDate.UTC().Format(time.RFC3339)))
	}
	if p.ExitPrice.Valid {
		b.WriteString(fmt.Sprintf(":EXIT_PRICE: %s\n", p.ExitPrice.Decimal.String()))
	}
	b.WriteString(fmt.Sprintf(":PNL: %s\n", p.PnL.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":COMMISSION: %s %s\n", p.Commission.String(), p.CommissionAsset))
	b.WriteString(fmt.Sprintf(":CONFIDENCE: %d\n", p.Confidence))
	b.WriteString(fmt.Sprintf(":GREED: %d\n", p.Greed))
	if p.Synthetic {
		b.WriteString(":SYNTHETIC: t\n")
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")

	b.WriteString("*** Fills\n")
	b.WriteString("| Date | Action | Qty | % | Price | PnL | Order |\n")
	b.WriteString("|------+--------+-----+---+-------+-----+-------|\n")
	for _, h := range p.History {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			h.Date, h.Action, h.Quantity.String(), h.Percentage.StringFixed(2),
			h.Price.String(), h.PnL.StringFixed(2), h.OrderID))
	}
	b.WriteString("\n")

	notes := strings.TrimSpace(p.Notes)
	if notes == "" {
		b.WriteString("*** Thesis\n- \n\n")
		b.WriteString("*** Execution\n- \n\n")
		b.WriteString("*** Review\n- \n")
	} else {
		b.WriteString("*** Notes\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}

	return b.String()
}

// FormatPositionsOrg renders multiple positions separated by blank lines.
func FormatPositionsOrg(positions []trade.Position) string {
	var b strings.Builder
	for i, p := range positions {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatPositionOrg(p))
	}
	return b.String()
}

func shortID(full string) string {
	// Position ids end with the opening order id.
	if i := strings.LastIndex(full, "_"); i >= 0 && i < len(full)-1 {
		return full[i+1:]
	}
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
