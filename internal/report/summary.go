package report

import (
	"bytes"
	"fmt"

	svg "github.com/ajstarks/svgo"
	"github.com/shopspring/decimal"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Summary is the aggregate view rendered into the report graphic.
type Summary struct {
	Count         int
	PurchaseTotal decimal.Decimal
	CashoutTotal  decimal.Decimal
	// Latest is the local time-of-day of the most recent transaction,
	// empty when there are none with a usable timestamp.
	Latest string
	// Hourly is a histogram of transaction count by local hour-of-day.
	Hourly [24]int
}

// Compute aggregates transactions for the summary graphic.
func Compute(txns []model.Transaction) Summary {
	s := Summary{
		Count:         len(txns),
		PurchaseTotal: decimal.Zero,
		CashoutTotal:  decimal.Zero,
	}

	var latest model.Transaction
	for _, txn := range txns {
		s.PurchaseTotal = s.PurchaseTotal.Add(txn.Purchase)
		s.CashoutTotal = s.CashoutTotal.Add(txn.Cashout)
		if txn.Time.IsZero() {
			continue
		}
		local := model.Local(txn.Time)
		s.Hourly[local.Hour()]++
		if latest.Time.IsZero() || txn.Time.After(latest.Time) {
			latest = txn
		}
	}
	if !latest.Time.IsZero() {
		s.Latest = model.Local(latest.Time).Format("15:04")
	}
	return s
}

// Fixed canvas geometry.
const (
	svgWidth    = 800
	svgHeight   = 420
	marginX     = 40
	headerY     = 56
	tileY       = 92
	tileW       = 176
	tileH       = 84
	tileGap     = 16
	chartTop    = 210
	chartHeight = 160
	chartBottom = chartTop + chartHeight
)

// SVG renders the summary as a fixed-size vector graphic: a header line,
// four summary tiles and an hourly bar chart scaled so the tallest bucket
// fills the chart. An empty histogram renders all bars at zero height.
func SVG(s Summary, dateLabel string) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(svgWidth, svgHeight)

	canvas.Rect(0, 0, svgWidth, svgHeight, "fill:#ffffff")
	canvas.Text(marginX, headerY, fmt.Sprintf("Transactions — %s (NZ)", dateLabel),
		"font-family:Helvetica,Arial,sans-serif;font-size:24px;fill:#1a1a2e;font-weight:bold")

	tiles := []struct{ label, value string }{
		{"Transactions", fmt.Sprintf("%d", s.Count)},
		{"Purchases", "$" + s.PurchaseTotal.StringFixed(2)},
		{"Cash out", "$" + s.CashoutTotal.StringFixed(2)},
		{"Last transaction", orDash(s.Latest)},
	}
	for i, tile := range tiles {
		x := marginX + i*(tileW+tileGap)
		canvas.Rect(x, tileY, tileW, tileH, "fill:#f4f5f7;stroke:#d8dae0;stroke-width:1")
		canvas.Text(x+14, tileY+28, tile.label,
			"font-family:Helvetica,Arial,sans-serif;font-size:13px;fill:#6b7280")
		canvas.Text(x+14, tileY+62, tile.value,
			"font-family:Helvetica,Arial,sans-serif;font-size:22px;fill:#111827;font-weight:bold")
	}

	drawHistogram(canvas, s.Hourly)

	canvas.End()
	return buf.Bytes()
}

func drawHistogram(canvas *svg.SVG, hourly [24]int) {
	max := 0
	for _, n := range hourly {
		if n > max {
			max = n
		}
	}

	chartWidth := svgWidth - 2*marginX
	slot := chartWidth / 24
	barW := slot - 6

	canvas.Line(marginX, chartBottom, svgWidth-marginX, chartBottom, "stroke:#d8dae0;stroke-width:1")
	for hour, n := range hourly {
		x := marginX + hour*slot
		if max > 0 && n > 0 {
			h := n * chartHeight / max
			canvas.Rect(x, chartBottom-h, barW, h, "fill:#4f6df5")
		}
		if hour%3 == 0 {
			canvas.Text(x, chartBottom+22, fmt.Sprintf("%02d", hour),
				"font-family:Helvetica,Arial,sans-serif;font-size:11px;fill:#6b7280")
		}
	}
	canvas.Text(marginX, chartTop-12, "Transactions by hour",
		"font-family:Helvetica,Arial,sans-serif;font-size:13px;fill:#6b7280")
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
