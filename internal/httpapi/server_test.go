package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotech-nz/paymark-reporter/internal/auth"
	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/fetch"
	"github.com/autotech-nz/paymark-reporter/internal/job"
	"github.com/autotech-nz/paymark-reporter/internal/mail"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

var nopLog = zerolog.Nop()

type stubFetcher struct {
	records  []model.RawRecord
	gotQuery fetch.Query
}

func (f *stubFetcher) Fetch(_ context.Context, chain []auth.Credential, q fetch.Query) (fetch.Result, error) {
	f.gotQuery = q
	return fetch.Result{Records: f.records, Mode: chain[0].Mode}, nil
}

type stubMailer struct{ calls int }

func (m *stubMailer) Send(mail.Message) error { m.calls++; return nil }

func testServer(fetcher job.Fetcher) (*Server, *config.Config) {
	cfg := config.Default()
	cfg.Auth.Token = "tok"
	cfg.Auth.Password = "secret"
	cfg.Auth.Username = "owner@example.co.nz"
	cfg.Mail = config.MailConfig{
		To: "owner@example.co.nz", From: "reports@example.co.nz",
		SMTPHost: "smtp.example.co.nz", SMTPPort: 587, SMTPUser: "u", SMTPPass: "p",
	}
	runner := job.NewRunner(cfg, fetcher, &stubMailer{}, nopLog)
	return NewServer(runner, cfg, nopLog), cfg
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := testServer(&stubFetcher{})
	w := doRequest(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OK       bool              `json:"ok"`
		EnvHints map[string]string `json:"envHints"`
		NZDate   string            `json:"nzDate"`
		Window   struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"nzWindowUTC"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.True(t, body.OK)
	assert.Equal(t, "(set)", body.EnvHints["PAYMARK_USER"])
	assert.Equal(t, "(set)", body.EnvHints["PAYMARK_PASS"])
	assert.NotEmpty(t, body.NZDate)
	assert.NotEmpty(t, body.Window.From)
	assert.NotEmpty(t, body.Window.To)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestReport_Debug(t *testing.T) {
	fetcher := &stubFetcher{records: []model.RawRecord{{"purchaseAmount": 12.5}}}
	s, _ := testServer(fetcher)

	w := doRequest(s, http.MethodGet, "/api/report?debug=1")
	require.Equal(t, http.StatusOK, w.Code)

	var out model.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.OK)
	assert.False(t, out.Sent)
	assert.Equal(t, 1, out.Count)
}

func TestReport_OptionPlumbing(t *testing.T) {
	fetcher := &stubFetcher{}
	s, _ := testServer(fetcher)

	w := doRequest(s, http.MethodPost,
		"/api/report?debug=1&page=2&limit=10&cardAcceptorIdCodes=111,222&accept=application/json")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, fetcher.gotQuery.Page)
	assert.Equal(t, 10, fetcher.gotQuery.Limit)
	assert.Equal(t, []string{"111", "222"}, fetcher.gotQuery.Merchants)
	assert.Equal(t, "application/json", fetcher.gotQuery.Accept)
}

func TestReport_BadOptions(t *testing.T) {
	s, _ := testServer(&stubFetcher{})

	w := doRequest(s, http.MethodGet, "/api/report?page=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, "/api/report?from=not-a-time")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReport_FailureOutcome(t *testing.T) {
	s, cfg := testServer(&stubFetcher{})
	cfg.Auth = config.AuthConfig{} // strip credentials

	w := doRequest(s, http.MethodGet, "/api/report?debug=1")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var out model.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "missing_credentials")
}
