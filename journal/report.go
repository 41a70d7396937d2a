package journal

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradejournal/trade"
)

// DaySummary aggregates the positions closed on one day.
type DaySummary struct {
	Date       time.Time
	Positions  []trade.Position
	Wins       int
	Losses     int
	Flat       int
	NetPnL     decimal.Decimal
	GrossWin   decimal.Decimal
	GrossLoss  decimal.Decimal
	Commission decimal.Decimal
}

// Summarize builds the summary of positions closed on date.
func Summarize(date time.Time, closed []trade.Position) DaySummary {
	s := DaySummary{Date: date, Positions: closed}
	for _, p := range closed {
		s.NetPnL = s.NetPnL.Add(p.PnL)
		s.Commission = s.Commission.Add(p.Commission)
		switch p.PnL.Sign() {
		case 1:
			s.Wins++
			s.GrossWin = s.GrossWin.Add(p.PnL)
		case -1:
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(p.PnL.Abs())
		default:
			s.Flat++
		}
	}
	return s
}

// Trades is the number of closed positions.
func (s DaySummary) Trades() int {
	return len(s.Positions)
}

// WinRate is wins over wins plus losses, as a percentage.
func (s DaySummary) WinRate() decimal.Decimal {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(decided))).Mul(decimal.NewFromInt(100))
}

// ProfitFactor is gross win over gross loss; false when there were no losses.
func (s DaySummary) ProfitFactor() (decimal.Decimal, bool) {
	if s.GrossLoss.IsZero() {
		return decimal.Zero, false
	}
	return s.GrossWin.Div(s.GrossLoss), true
}

var dayOrgFuncs = template.FuncMap{
	"fixed": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pf": func(s DaySummary) string {
		pf, ok := s.ProfitFactor()
		if !ok {
			return "(no losses)"
		}
		return pf.StringFixed(2)
	},
	"exit": func(p trade.Position) string {
		if p.ExitPrice.Valid {
			return p.ExitPrice.Decimal.String()
		}
		return "-"
	},
}

var dayOrgTemplate = template.Must(template.New("day").Funcs(dayOrgFuncs).Parse(DayOrgTemplate))

// FormatDayOrg renders s as an Org-mode day entry.
func FormatDayOrg(s DaySummary) (string, error) {
	buf := new(bytes.Buffer)
	if err := dayOrgTemplate.Execute(buf, s); err != nil {
		return "", fmt.Errorf("render day summary: %w", err)
	}
	return buf.String(), nil
}

const DayOrgTemplate = `* DAY: {{.Date.Format "2006-01-02 Mon"}}
:PROPERTIES:
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{fixed .WinRate}}
:NET_PNL:     {{fixed .NetPnL}}
:COMMISSION:  {{.Commission}}
:PROFIT_FAC:  {{pf .}}
:END:

** Performance Summary
- Net PnL:        *{{fixed .NetPnL}}*
- Win Rate:       *{{fixed .WinRate}}%*
- Profit Factor:  *{{pf .}}*

{{- if .Positions }}

** Closed Positions
| Symbol | Side | Entry | Exit | Size | PnL |
|--------+------+-------+------+------+-----|
{{- range .Positions }}
| {{.Symbol}} | {{.Side}} | {{.EntryPrice}} | {{exit .}} | {{.TotalQuantity}} | {{fixed .PnL}} |
{{- end }}
{{- end }}
`
