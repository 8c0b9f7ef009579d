// Package normalize maps heterogeneous upstream transaction records into
// the canonical form. Two upstream shapes are known: the direct API's JSON
// records and the rows lifted out of the portal's rendered table. Field
// probing tolerates both; the probe orders are provisional, first present
// wins.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// defaultCurrency is used when the record carries no currency.
const defaultCurrency = "NZD"

// purchaseSentinel marks an upstream type value as a purchase. Matched
// case-insensitively; undocumented upstream, observed in both shapes.
const purchaseSentinel = "purchase"

var (
	timeFields     = []string{"transactionTime", "time", "dateTime", "createdTime"}
	terminalFields = []string{"terminalId", "cardAcceptorTerminalId", "terminal"}
	cardFields     = []string{"cardType", "cardLogo", "card"}
	kindFields     = []string{"transactionType", "type", "transactionCategory"}
	purchaseFields = []string{"purchaseAmount", "amount", "totalAmount", "txnAmount"}
	cashoutFields  = []string{"cashoutAmount", "cashAmount", "cashout"}
	currencyFields = []string{"currency", "currencyCode"}
	authFields     = []string{"authorisationCode", "authCode", "approvalCode"}
	refFields      = []string{"referenceNumber", "ref", "reference", "retrievalReferenceNumber"}
	suffixFields   = []string{"maskedCardSuffix", "suffix", "maskedPan", "cardNumber"}
	statusFields   = []string{"status", "transactionStatus"}
)

// zonedLayouts carry an explicit offset. localLayouts are wall-clock
// formats from the portal's rendered table; the portal displays times in
// the merchant's timezone, so they are read against the reporting zone.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"02/01/2006 15:04:05",
		"02/01/2006 3:04 PM",
		"02/01/2006 15:04",
	}
)

// Records normalizes a batch. Total: every input record yields a canonical
// transaction, however sparse or malformed.
func Records(raws []model.RawRecord) []model.Transaction {
	txns := make([]model.Transaction, 0, len(raws))
	for _, r := range raws {
		txns = append(txns, Record(r))
	}
	return txns
}

// Record normalizes one upstream record. Missing or unparseable fields
// degrade to documented defaults; amounts are never negative and never
// absent.
func Record(raw model.RawRecord) model.Transaction {
	purchase := amount(raw, purchaseFields)
	kind := text(raw, kindFields, "")
	if strings.EqualFold(kind, purchaseSentinel) || purchase.IsPositive() {
		kind = model.KindPurchase
	}

	return model.Transaction{
		Time:       timestamp(raw),
		TerminalID: text(raw, terminalFields, ""),
		CardLabel:  text(raw, cardFields, ""),
		Kind:       kind,
		Purchase:   purchase,
		Cashout:    amount(raw, cashoutFields),
		Currency:   text(raw, currencyFields, defaultCurrency),
		AuthCode:   text(raw, authFields, ""),
		Reference:  text(raw, refFields, ""),
		CardSuffix: suffix(raw),
		Status:     text(raw, statusFields, ""),
	}
}

// text probes fields in order and returns the first non-empty value.
func text(raw model.RawRecord, fields []string, fallback string) string {
	for _, f := range fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		s := strings.TrimSpace(stringify(v))
		if s != "" {
			return s
		}
	}
	return fallback
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// amount probes fields in order and parses the first non-empty one.
// Non-numeric or negative input coerces to zero; this never fails.
func amount(raw model.RawRecord, fields []string) decimal.Decimal {
	for _, f := range fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		if d, ok := parseAmount(v); ok {
			if d.IsNegative() {
				return decimal.Zero
			}
			return d
		}
	}
	return decimal.Zero
}

func parseAmount(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimPrefix(s, "$")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			// Portal cells like "$12.50 NZD" keep a trailing label.
			if fields := strings.Fields(s); len(fields) > 1 {
				if d, err := decimal.NewFromString(fields[0]); err == nil {
					return d, true
				}
			}
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func timestamp(raw model.RawRecord) time.Time {
	s := text(raw, timeFields, "")
	if s == "" {
		return time.Time{}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	loc, err := time.LoadLocation(model.ReportZone)
	if err != nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// suffix extracts the last four digits of whatever card number field is
// present; masked forms like "**** 1234" reduce to "1234".
func suffix(raw model.RawRecord) string {
	s := text(raw, suffixFields, "")
	if s == "" {
		return ""
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return digits
}
