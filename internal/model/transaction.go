package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// KindPurchase is the canonical transaction kind for purchases. Any other
// kind is carried through from the upstream record unchanged.
const KindPurchase = "Purchase"

// RawRecord is one upstream transaction record as returned by the source,
// field names and value types untouched. The shape differs between the
// direct API responses and rendered-table extraction.
type RawRecord map[string]any

// Transaction is the canonical, source-independent form of one card
// transaction.
type Transaction struct {
	Time       time.Time // zero when the upstream timestamp was unparseable
	TerminalID string
	CardLabel  string
	Kind       string
	Purchase   decimal.Decimal // never negative
	Cashout    decimal.Decimal // never negative
	Currency   string
	AuthCode   string
	Reference  string
	CardSuffix string
	Status     string
}

// Artifacts holds the rendered outputs of one report run.
type Artifacts struct {
	CSV        string
	SummarySVG []byte
	Count      int
}
