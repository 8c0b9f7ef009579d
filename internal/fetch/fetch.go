// Package fetch retrieves one day of raw transaction records from the
// reporting portal. Two interchangeable strategies exist: a direct
// authenticated API call for token credentials, and a browser-driven
// session for cookie or password credentials. Strategy selection follows
// from which credential material resolved; the caller never picks.
package fetch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/auth"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Query is one retrieval request.
type Query struct {
	Window    model.TimeWindow
	Merchants []string // cardAcceptorIdCodes filter

	// Page, when non-zero, fetches that page only instead of paginating.
	Page  int
	Limit int
	// MaxPages bounds pagination so a misbehaving upstream cannot keep a
	// run alive indefinitely.
	MaxPages int

	// Accept overrides the API content-negotiation candidates.
	Accept string
}

// Result is a successful retrieval. An empty record set is a valid result.
type Result struct {
	Records []model.RawRecord

	// Mode is the credential mode the retrieval ran under.
	Mode auth.Mode
	// Accept is the Accept header value the upstream finally took
	// (direct API strategy only).
	Accept string
}

// Fetcher dispatches a query to the strategy matching the resolved
// credential chain.
type Fetcher struct {
	API     *APIClient
	Browser *BrowserFetcher
	Log     zerolog.Logger
}

// Fetch runs one bounded retrieval. chain is the resolved credential
// chain, strongest first; browser-driven retrieval may fall back one hop
// down the chain if the portal bounces the session.
func (f *Fetcher) Fetch(ctx context.Context, chain []auth.Credential, q Query) (Result, error) {
	cred := chain[0]
	f.Log.Info().Str("phase", "fetch").Str("mode", string(cred.Mode)).Msg("starting retrieval")

	if cred.Browser() {
		records, err := f.Browser.Fetch(ctx, chain, q)
		if err != nil {
			return Result{}, err
		}
		return Result{Records: records, Mode: cred.Mode}, nil
	}

	records, accept, err := f.API.Fetch(ctx, cred.Token, q)
	if err != nil {
		return Result{}, err
	}
	return Result{Records: records, Mode: cred.Mode, Accept: accept}, nil
}
