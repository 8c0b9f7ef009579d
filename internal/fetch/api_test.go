package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotech-nz/paymark-reporter/internal/model"
)

var nopLog = zerolog.Nop()

func testWindow(t *testing.T) model.TimeWindow {
	t.Helper()
	win, err := model.DayWindow(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return win
}

func testQuery(t *testing.T) Query {
	return Query{
		Window:    testWindow(t),
		Merchants: []string{"10243212"},
		Limit:     100,
		MaxPages:  20,
	}
}

func newClient(t *testing.T, srv *httptest.Server, accept string) *APIClient {
	t.Helper()
	return NewAPIClient(srv.URL, accept, 5*time.Second, nopLog)
}

func recordsBody(n int) []byte {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{"transactionTime": "2024-01-01T03:00:00Z", "purchaseAmount": 12.5}
	}
	body, _ := json.Marshal(map[string]any{"data": records})
	return body
}

func TestAPIFetch_AcceptFallback(t *testing.T) {
	var accepts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts = append(accepts, r.Header.Get("Accept"))
		if len(accepts) <= 2 {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Write(recordsBody(3))
	}))
	defer srv.Close()

	records, accept, err := newClient(t, srv, "").Fetch(context.Background(), "tok", testQuery(t))
	require.NoError(t, err)

	assert.Len(t, records, 3)
	// Third candidate won and is recorded.
	assert.Equal(t, defaultAccepts[2], accept)
	assert.Equal(t, defaultAccepts[:3], accepts)
}

func TestAPIFetch_Non406StopsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", testQuery(t))
	require.Error(t, err)

	assert.Equal(t, 1, calls, "no further accept attempts after a non-406 failure")
	re, ok := model.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrUpstreamRejected, re.Kind)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "upstream exploded", re.Sample)
	assert.Contains(t, re.API, transactionPath)
}

func TestAPIFetch_AllAcceptsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
	}))
	defer srv.Close()

	_, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", testQuery(t))
	require.Error(t, err)

	re, _ := model.AsRunError(err)
	assert.Equal(t, http.StatusNotAcceptable, re.Status)
}

func TestAPIFetch_AcceptOverrideIsOnlyCandidate(t *testing.T) {
	var accepts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts = append(accepts, r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
	}))
	defer srv.Close()

	q := testQuery(t)
	q.Accept = "application/vnd.custom+json"
	_, _, err := newClient(t, srv, "application/configured+json").Fetch(context.Background(), "tok", q)
	require.Error(t, err)
	assert.Equal(t, []string{"application/vnd.custom+json"}, accepts)
}

func TestAPIFetch_BearerAndQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "10243212", r.URL.Query().Get("cardAcceptorIdCodes"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.URL.Query().Get("transactionTimeFrom"))
		assert.NotEmpty(t, r.URL.Query().Get("transactionTimeTo"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	records, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", testQuery(t))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAPIFetch_Pagination(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if pages < 3 {
			w.Write(recordsBody(2))
			return
		}
		w.Write(recordsBody(1)) // short page ends pagination
	}))
	defer srv.Close()

	q := testQuery(t)
	q.Limit = 2
	records, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", q)
	require.NoError(t, err)

	assert.Equal(t, 3, pages)
	assert.Len(t, records, 5)
}

func TestAPIFetch_PaginationCeiling(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Write(recordsBody(2)) // always full pages
	}))
	defer srv.Close()

	q := testQuery(t)
	q.Limit = 2
	q.MaxPages = 4
	records, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", q)
	require.NoError(t, err)

	assert.Equal(t, 4, pages)
	assert.Len(t, records, 8)
}

func TestAPIFetch_ExplicitPageDisablesPagination(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("page"))
		w.Write(recordsBody(100))
	}))
	defer srv.Close()

	q := testQuery(t)
	q.Page = 3
	records, _, err := newClient(t, srv, "").Fetch(context.Background(), "tok", q)
	require.NoError(t, err)

	assert.Equal(t, []string{"3"}, requested)
	assert.Len(t, records, 100)
}

func TestExtractRecords_ContainerProbing(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"top-level array", `[{"a":1},{"a":2}]`, 2},
		{"data container", `{"data":[{"a":1}]}`, 1},
		{"items container", `{"items":[{"a":1}]}`, 1},
		{"results container", `{"results":[{"a":1}]}`, 1},
		{"content container", `{"content":[{"a":1}]}`, 1},
		{"empty container skipped for later match", `{"data":[],"items":[{"a":1}]}`, 1},
		{"no container", `{"total":0}`, 0},
		{"scalar top level", `42`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := extractRecords([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestExtractRecords_BadJSON(t *testing.T) {
	_, err := extractRecords([]byte("<html>not json</html>"))
	assert.Error(t, err)
}
