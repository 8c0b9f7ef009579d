// Package browser abstracts the rendered-page automation engine the
// browser-driven fetch strategy runs on. The core only depends on the Page
// capability; the chromedp implementation lives alongside it and any other
// engine can be substituted without touching the fetch control flow.
package browser

import (
	"context"
	"time"
)

// Page is an exclusive, run-scoped handle on one rendered browser page.
// Waits are bounded by explicit timeouts; the owner must Close the page on
// every exit path.
type Page interface {
	// Navigate loads url and returns once the document has loaded.
	Navigate(url string) error

	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(selector string, timeout time.Duration) error

	// WaitFunc blocks until script (a JS expression) evaluates truthy.
	WaitFunc(script string, timeout time.Duration) error

	// ReadTable extracts the body rows of the table matched by selector,
	// one []string of cell texts per row.
	ReadTable(selector string) ([][]string, error)

	// SetCookies applies a raw Cookie header's pairs to origin.
	SetCookies(origin, header string) error

	// SetStorage writes entries into the page's local storage.
	SetStorage(entries map[string]string) error

	// Evaluate runs a JS expression, unmarshaling its result into out
	// when out is non-nil.
	Evaluate(script string, out any) error

	// Location returns the page's current URL.
	Location() (string, error)

	// Close releases the page and its browser resources.
	Close() error
}

// Factory opens a fresh page for one run. Each run owns its own browser
// instance; nothing is shared between concurrent runs.
type Factory func(ctx context.Context) (Page, error)
