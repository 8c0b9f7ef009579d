package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotech-nz/paymark-reporter/internal/auth"
	"github.com/autotech-nz/paymark-reporter/internal/browser"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// fakePage scripts a portal session without a real browser.
type fakePage struct {
	navigated []string
	loc       string
	storage   map[string]string
	cookieHdr string
	closed    bool

	// txnNavs counts navigations to the transactions view; sessions
	// bounce to the login origin while txnNavs <= bounceFirst.
	txnNavs     int
	bounceFirst int

	waitVisibleErr error
	waitFuncErr    error
	hasPassword    bool
	loginFilled    bool

	// tables is returned page by page from ReadTable.
	tables     [][][]string
	tableCalls int
}

func (p *fakePage) Navigate(u string) error {
	p.navigated = append(p.navigated, u)
	p.loc = u
	if strings.Contains(u, "/transaction?") {
		p.txnNavs++
		if p.txnNavs <= p.bounceFirst {
			p.loc = "https://login.paymark.co.nz/authorize"
		}
	}
	return nil
}

func (p *fakePage) WaitVisible(string, time.Duration) error { return p.waitVisibleErr }
func (p *fakePage) WaitFunc(string, time.Duration) error    { return p.waitFuncErr }

func (p *fakePage) ReadTable(string) ([][]string, error) {
	if p.tableCalls >= len(p.tables) {
		return nil, nil
	}
	rows := p.tables[p.tableCalls]
	p.tableCalls++
	return rows, nil
}

func (p *fakePage) SetCookies(_, header string) error {
	p.cookieHdr = header
	return nil
}

func (p *fakePage) SetStorage(entries map[string]string) error {
	p.storage = entries
	return nil
}

func (p *fakePage) Evaluate(script string, out any) error {
	if strings.Contains(script, `input[type="password"]`) {
		if b, ok := out.(*bool); ok {
			*b = p.hasPassword
			return nil
		}
	}
	if strings.Contains(script, "fill(") {
		p.loginFilled = true
	}
	return nil
}

func (p *fakePage) Location() (string, error) { return p.loc, nil }
func (p *fakePage) Close() error              { p.closed = true; return nil }

func testFetcher(page *fakePage) (*BrowserFetcher, *int) {
	opened := 0
	factory := browser.Factory(func(context.Context) (browser.Page, error) {
		opened++
		return page, nil
	})
	return &BrowserFetcher{
		NewPage: factory,
		Config: BrowserConfig{
			PortalURL:        "https://insights.paymark.co.nz",
			LoginHost:        "login.paymark.co.nz",
			TransactionsPath: "/transaction",
			MerchantName:     "AUTO TECH REPAIR&SERVICES",
			WaitTimeout:      time.Second,
		},
		Log: nopLog,
	}, &opened
}

func cookieCred() auth.Credential {
	return auth.Credential{Mode: auth.ModeCookies, CookieHeader: "session=abc", Storage: map[string]string{"theme": "dark"}}
}

func passwordCred() auth.Credential {
	return auth.Credential{Mode: auth.ModePassword, Username: "u", Password: "p"}
}

func TestBrowserFetch_CookieSession(t *testing.T) {
	page := &fakePage{
		hasPassword: true,
		tables: [][][]string{{
			{"01/01/2024 16:00", "Visa", "Purchase", "$12.50", "123456", "REF-1"},
			{"01/01/2024 18:00", "Mastercard", "Cash Out", "$20.00", "", "REF-2"},
		}},
	}
	f, opened := testFetcher(page)

	q := testQuery(t)
	records, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, q)
	require.NoError(t, err)

	assert.Equal(t, 1, *opened)
	assert.True(t, page.closed, "page released on success")
	assert.Equal(t, "session=abc", page.cookieHdr)
	assert.Equal(t, "dark", page.storage["theme"])
	assert.False(t, page.loginFilled, "cookie session never touches the login form")

	require.Len(t, records, 2)
	assert.Equal(t, "Visa", records[0]["cardType"])
	assert.Equal(t, "$12.50", records[0]["amount"])
	assert.Equal(t, "REF-2", records[1]["ref"])
}

func TestBrowserFetch_TransactionsURLCarriesFilters(t *testing.T) {
	page := &fakePage{tables: [][][]string{{}}}
	f, _ := testFetcher(page)

	_, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, testQuery(t))
	require.NoError(t, err)

	var txnURL string
	for _, u := range page.navigated {
		if strings.Contains(u, "/transaction?") {
			txnURL = u
		}
	}
	require.NotEmpty(t, txnURL)
	assert.Contains(t, txnURL, "cardAcceptorIdCode=10243212")
	assert.Contains(t, txnURL, "cardType=All+Cards")
	assert.Contains(t, txnURL, "transactionCategory=All+Types")
	assert.Contains(t, txnURL, "limit=100")
	assert.Contains(t, txnURL, "transactionTimeFrom=")
}

func TestBrowserFetch_BounceRetriesNextCredential(t *testing.T) {
	page := &fakePage{
		bounceFirst: 1,
		hasPassword: true,
		tables:      [][][]string{{{"01/01/2024 16:00", "Visa", "Purchase", "$12.50", "1", "R"}}},
	}
	f, _ := testFetcher(page)

	chain := []auth.Credential{cookieCred(), passwordCred()}
	records, err := f.Fetch(context.Background(), chain, testQuery(t))
	require.NoError(t, err)

	assert.True(t, page.loginFilled, "fallback credential drove the login form")
	assert.Len(t, records, 1)
	assert.True(t, page.closed)
}

func TestBrowserFetch_BounceWithoutFallbackFails(t *testing.T) {
	page := &fakePage{bounceFirst: 99}
	f, _ := testFetcher(page)

	_, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrUpstreamRejected, model.KindOf(err))
	assert.True(t, page.closed, "page released on failure")
}

func TestBrowserFetch_SecondBounceGivesUp(t *testing.T) {
	page := &fakePage{bounceFirst: 99, hasPassword: true}
	f, _ := testFetcher(page)

	chain := []auth.Credential{cookieCred(), passwordCred()}
	_, err := f.Fetch(context.Background(), chain, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrUpstreamRejected, model.KindOf(err))
}

func TestBrowserFetch_LoginFieldsNeverAppear(t *testing.T) {
	page := &fakePage{waitVisibleErr: context.DeadlineExceeded}
	f, _ := testFetcher(page)

	_, err := f.Fetch(context.Background(), []auth.Credential{passwordCred()}, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrUnsupportedLogin, model.KindOf(err))
	assert.True(t, page.closed)
}

func TestBrowserFetch_NoPasswordField(t *testing.T) {
	page := &fakePage{hasPassword: false}
	f, _ := testFetcher(page)

	_, err := f.Fetch(context.Background(), []auth.Credential{passwordCred()}, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrUnsupportedLogin, model.KindOf(err))
}

func TestBrowserFetch_TableTimeout(t *testing.T) {
	page := &fakePage{waitFuncErr: context.DeadlineExceeded}
	f, _ := testFetcher(page)

	_, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrExtractionTimeout, model.KindOf(err))
	assert.True(t, page.closed)
}

func TestBrowserFetch_EmptyPageIsSuccess(t *testing.T) {
	page := &fakePage{tables: [][][]string{{}}}
	f, _ := testFetcher(page)

	records, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, testQuery(t))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBrowserFetch_Pagination(t *testing.T) {
	full := make([][]string, 2)
	for i := range full {
		full[i] = []string{"01/01/2024 16:00", "Visa", "Purchase", "$1.00", "1", "R"}
	}
	page := &fakePage{
		tables: [][][]string{full, full, {full[0]}},
	}
	f, _ := testFetcher(page)

	q := testQuery(t)
	q.Limit = 2
	records, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, q)
	require.NoError(t, err)

	assert.Equal(t, 3, page.txnNavs)
	assert.Len(t, records, 5)
}

func TestBrowserFetch_FactoryFailure(t *testing.T) {
	factory := browser.Factory(func(context.Context) (browser.Page, error) {
		return nil, errors.New("no chrome binary")
	})
	f := &BrowserFetcher{NewPage: factory, Config: BrowserConfig{WaitTimeout: time.Second}, Log: nopLog}

	_, err := f.Fetch(context.Background(), []auth.Credential{cookieCred()}, testQuery(t))
	require.Error(t, err)
	assert.Equal(t, model.ErrExtractionTimeout, model.KindOf(err))
}

func TestNextBrowserCredential(t *testing.T) {
	chain := []auth.Credential{
		cookieCred(),
		{Mode: auth.ModeToken, Token: "t"},
		passwordCred(),
	}
	next, ok := nextBrowserCredential(chain)
	require.True(t, ok)
	assert.Equal(t, auth.ModePassword, next.Mode)

	_, ok = nextBrowserCredential([]auth.Credential{cookieCred()})
	assert.False(t, ok)
}
