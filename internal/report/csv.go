// Package report renders canonical transactions into the deliverable
// artifacts: a CSV table and a vector summary graphic.
package report

import (
	"strings"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Header is the fixed CSV header row, in canonical column order.
const Header = "Time (NZ),Terminal,Card,Type,Purchase,Cashout,Auth Code,Reference,Card Suffix,Status"

const timeFormat = "2006-01-02 15:04:05"

// CSV renders transactions as a comma-separated table. The header row is
// always present, even for zero transactions. Fields are not quoted;
// commas inside a field are replaced with a space, so a field containing a
// literal comma loses it. Lossy, kept for compatibility with the existing
// report consumers.
func CSV(txns []model.Transaction) string {
	var b strings.Builder
	b.WriteString(Header)

	for _, txn := range txns {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row(txn), ","))
	}
	b.WriteByte('\n')
	return b.String()
}

func row(txn model.Transaction) []string {
	timeNZ := ""
	if !txn.Time.IsZero() {
		timeNZ = model.Local(txn.Time).Format(timeFormat)
	}
	return []string{
		stripCommas(timeNZ),
		stripCommas(txn.TerminalID),
		stripCommas(txn.CardLabel),
		stripCommas(txn.Kind),
		txn.Purchase.StringFixed(2),
		txn.Cashout.StringFixed(2),
		stripCommas(txn.AuthCode),
		stripCommas(txn.Reference),
		stripCommas(txn.CardSuffix),
		stripCommas(txn.Status),
	}
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", " ")
}
