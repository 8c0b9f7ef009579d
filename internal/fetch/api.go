package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// transactionPath is the upstream merchant-transaction endpoint.
const transactionPath = "/merchant/transaction/"

// windowFormat matches the ISO form the upstream expects for the window
// boundaries, millisecond precision with offset.
const windowFormat = "2006-01-02T15:04:05.000Z07:00"

// defaultAccepts is the content-negotiation candidate order. The upstream
// rejects some Accept values with 406 and which ones has changed over
// time, so a generic JSON-family list is probed until one sticks.
var defaultAccepts = []string{
	"application/json",
	"application/vnd.paymark+json",
	"application/*+json",
	"*/*",
}

// containerKeys is the probe order for locating the record list inside a
// response document when the top level is not already an array.
var containerKeys = []string{"data", "items", "results", "content"}

// APIClient issues authenticated reads against the merchant transaction
// API.
type APIClient struct {
	base    string
	accept  string // configured fixed Accept, empty to probe
	client  *http.Client
	log     zerolog.Logger
}

// NewAPIClient creates a client for the given API base URL.
func NewAPIClient(base, accept string, timeout time.Duration, log zerolog.Logger) *APIClient {
	return &APIClient{
		base:   strings.TrimRight(base, "/"),
		accept: accept,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Fetch retrieves all records in the query window, paginating unless the
// query pins a single page. Returns the records and the Accept header
// value the upstream took.
func (c *APIClient) Fetch(ctx context.Context, token string, q Query) ([]model.RawRecord, string, error) {
	accepts := c.acceptCandidates(q)

	if q.Page > 0 {
		return c.fetchPage(ctx, token, q, q.Page, accepts)
	}

	var all []model.RawRecord
	accepted := ""
	for page := 1; ; page++ {
		records, accept, err := c.fetchPage(ctx, token, q, page, accepts)
		if err != nil {
			return nil, "", err
		}
		accepted = accept
		// Keep negotiating with the value that worked.
		accepts = []string{accept}

		all = append(all, records...)
		if len(records) == 0 || len(records) < q.Limit {
			break
		}
		if page >= q.MaxPages {
			c.log.Warn().Int("pages", page).Msg("pagination ceiling reached")
			break
		}
	}
	return all, accepted, nil
}

// fetchPage issues one GET, walking the Accept candidates past any 406.
// The first non-406 response settles the attempt: 2xx parses, anything
// else is terminal for the run.
func (c *APIClient) fetchPage(ctx context.Context, token string, q Query, page int, accepts []string) ([]model.RawRecord, string, error) {
	endpoint := c.pageURL(q, page)

	for i, accept := range accepts {
		status, body, err := c.get(ctx, endpoint, token, accept)
		if err != nil {
			return nil, "", model.NewRunError(model.ErrUpstreamRejected, err,
				"transaction request failed")
		}

		if status == http.StatusNotAcceptable {
			c.log.Debug().Str("accept", accept).Int("remaining", len(accepts)-i-1).
				Msg("accept variant rejected")
			continue
		}
		if status < 200 || status > 299 {
			return nil, "", model.NewRunError(model.ErrUpstreamRejected, nil,
				"upstream returned %d", status).
				WithUpstream(status, string(body), endpoint)
		}

		records, err := extractRecords(body)
		if err != nil {
			return nil, "", model.NewRunError(model.ErrUpstreamRejected, err,
				"unparseable transaction response").
				WithUpstream(status, string(body), endpoint)
		}
		return records, accept, nil
	}

	return nil, "", model.NewRunError(model.ErrUpstreamRejected, nil,
		"all %d accept variants rejected with 406", len(accepts)).
		WithUpstream(http.StatusNotAcceptable, "", endpoint)
}

func (c *APIClient) get(ctx context.Context, endpoint, token, accept string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *APIClient) pageURL(q Query, page int) string {
	v := url.Values{}
	v.Set("cardAcceptorIdCodes", strings.Join(q.Merchants, ","))
	v.Set("transactionTimeFrom", q.Window.From.Format(windowFormat))
	v.Set("transactionTimeTo", q.Window.To.Format(windowFormat))
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(q.Limit))
	return c.base + transactionPath + "?" + v.Encode()
}

func (c *APIClient) acceptCandidates(q Query) []string {
	if q.Accept != "" {
		return []string{q.Accept}
	}
	if c.accept != "" {
		return []string{c.accept}
	}
	return defaultAccepts
}

// extractRecords locates the record list in a response document: a
// top-level array, or the first non-empty of the known container keys.
// A document with no recognizable container holds zero records; that is
// not an error.
func extractRecords(body []byte) ([]model.RawRecord, error) {
	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if list, ok := top.([]any); ok {
		return toRecords(list), nil
	}

	obj, ok := top.(map[string]any)
	if !ok {
		return nil, nil
	}
	for _, key := range containerKeys {
		if list, ok := obj[key].([]any); ok && len(list) > 0 {
			return toRecords(list), nil
		}
	}
	return nil, nil
}

func toRecords(list []any) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, model.RawRecord(m))
		}
	}
	return records
}
