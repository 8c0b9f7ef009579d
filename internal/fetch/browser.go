package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/auth"
	"github.com/autotech-nz/paymark-reporter/internal/browser"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// errBounced signals that the portal rejected the session and sent the
// page back to the login origin.
var errBounced = errors.New("bounced to login origin")

// loginFieldSelector matches the username input across the login form
// variants the portal has shipped.
const loginFieldSelector = `input[type="email"], input[name="username"], input#username`

// emptyIndicator is the portal's explicit zero-result marker.
const emptyIndicator = "No transactions to display."

// tableColumns maps rendered table cell positions to raw field names, in
// the portal's column order.
var tableColumns = []string{"time", "cardType", "transactionType", "amount", "authCode", "ref"}

// BrowserConfig locates the portal for browser-driven retrieval.
type BrowserConfig struct {
	PortalURL        string
	LoginHost        string
	TransactionsPath string
	MerchantName     string
	WaitTimeout      time.Duration
}

// BrowserFetcher drives the reporting portal through a rendered-page
// session when no API token is available.
type BrowserFetcher struct {
	NewPage browser.Factory
	Config  BrowserConfig
	Log     zerolog.Logger
}

// Fetch retrieves the query window through the portal UI. The session runs
// under chain[0]; if the portal bounces it back to login, the next
// browser-capable credential in the chain gets one attempt before the run
// gives up. The page is released on every exit path.
func (f *BrowserFetcher) Fetch(ctx context.Context, chain []auth.Credential, q Query) ([]model.RawRecord, error) {
	page, err := f.NewPage(ctx)
	if err != nil {
		return nil, model.NewRunError(model.ErrExtractionTimeout, err, "opening browser session")
	}
	defer page.Close()

	records, err := f.attempt(page, chain[0], q)
	if !errors.Is(err, errBounced) {
		return records, err
	}

	next, ok := nextBrowserCredential(chain)
	if !ok {
		return nil, model.NewRunError(model.ErrUpstreamRejected, err,
			"portal rejected the session and no fallback credential remains")
	}
	f.Log.Warn().Str("phase", "bounce_retry").Str("mode", string(next.Mode)).
		Msg("session bounced to login, retrying with next credential")

	records, err = f.attempt(page, next, q)
	if errors.Is(err, errBounced) {
		return nil, model.NewRunError(model.ErrUpstreamRejected, err,
			"portal rejected both credential attempts")
	}
	return records, err
}

// attempt runs the full session flow once under a single credential.
func (f *BrowserFetcher) attempt(page browser.Page, cred auth.Credential, q Query) ([]model.RawRecord, error) {
	f.Log.Info().Str("phase", "open_portal").Msg("loading portal origin")
	if err := page.Navigate(f.Config.PortalURL); err != nil {
		return nil, model.NewRunError(model.ErrExtractionTimeout, err, "loading portal")
	}

	if err := f.applySession(page, cred); err != nil {
		return nil, err
	}

	var all []model.RawRecord
	start, limit := 1, q.Limit
	if q.Page > 0 {
		start = q.Page
	}

	for pageNo := start; ; pageNo++ {
		rows, err := f.readPage(page, q, pageNo, pageNo == start)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)

		if q.Page > 0 || len(rows) == 0 || len(rows) < limit {
			break
		}
		if pageNo-start+1 >= q.MaxPages {
			f.Log.Warn().Int("pages", q.MaxPages).Msg("pagination ceiling reached")
			break
		}
	}
	return all, nil
}

// applySession seeds the page with whatever session material the
// credential carries, reloading after each injection so the application
// picks the new state up, and runs the interactive login when credentials
// are all that is available.
func (f *BrowserFetcher) applySession(page browser.Page, cred auth.Credential) error {
	if len(cred.Storage) > 0 {
		f.Log.Info().Str("phase", "inject_storage").Int("entries", len(cred.Storage)).Msg("seeding local storage")
		if err := page.SetStorage(cred.Storage); err != nil {
			return model.NewRunError(model.ErrExtractionTimeout, err, "injecting local storage")
		}
		if err := page.Navigate(f.Config.PortalURL); err != nil {
			return model.NewRunError(model.ErrExtractionTimeout, err, "reloading after storage injection")
		}
	}

	if cred.CookieHeader != "" {
		f.Log.Info().Str("phase", "inject_cookies").Msg("seeding session cookies")
		if err := page.SetCookies(f.Config.PortalURL, cred.CookieHeader); err != nil {
			return model.NewRunError(model.ErrExtractionTimeout, err, "injecting cookies")
		}
		if err := page.Navigate(f.Config.PortalURL); err != nil {
			return model.NewRunError(model.ErrExtractionTimeout, err, "reloading after cookie injection")
		}
	}

	if cred.Mode == auth.ModePassword {
		return f.login(page, cred)
	}
	return nil
}

// login drives the interactive login form: wait for the credential fields,
// fill them, submit, and wait for a post-login signal.
func (f *BrowserFetcher) login(page browser.Page, cred auth.Credential) error {
	f.Log.Info().Str("phase", "wait_login_form").Msg("waiting for login fields")
	if err := page.WaitVisible(loginFieldSelector, f.Config.WaitTimeout); err != nil {
		return model.NewRunError(model.ErrUnsupportedLogin, err, "login fields never appeared")
	}

	var hasPassword bool
	if err := page.Evaluate(`document.querySelector('input[type="password"]') !== null`, &hasPassword); err != nil || !hasPassword {
		return model.NewRunError(model.ErrUnsupportedLogin, err, "no password field on login form")
	}

	before, err := page.Location()
	if err != nil {
		return model.NewRunError(model.ErrExtractionTimeout, err, "reading pre-login location")
	}
	beforeHost := hostOf(before)

	f.Log.Info().Str("phase", "submit_login").Msg("filling and submitting login form")
	if err := page.Evaluate(fillAndSubmitScript(cred.Username, cred.Password), nil); err != nil {
		return model.NewRunError(model.ErrUnsupportedLogin, err, "filling login form")
	}

	// Post-login signal: the host changes, or a navigation element with a
	// transactions link shows up.
	signal := fmt.Sprintf(
		`location.hostname !== %s ||
		 Array.from(document.querySelectorAll("a, button")).some(el => /transactions/i.test(el.textContent))`,
		jsString(beforeHost))
	if err := page.WaitFunc(signal, f.Config.WaitTimeout); err != nil {
		return model.NewRunError(model.ErrExtractionTimeout, err, "no post-login signal within timeout")
	}
	return nil
}

// readPage navigates to one page of the transactions view and extracts its
// rows. checkBounce guards the first navigation of an attempt, where an
// invalid session shows up as a redirect to the login origin.
func (f *BrowserFetcher) readPage(page browser.Page, q Query, pageNo int, checkBounce bool) ([]model.RawRecord, error) {
	target := f.transactionsURL(q, pageNo)
	f.Log.Info().Str("phase", "goto_transactions").Int("page", pageNo).Msg("loading transactions view")
	if err := page.Navigate(target); err != nil {
		return nil, model.NewRunError(model.ErrExtractionTimeout, err, "loading transactions view")
	}

	if checkBounce {
		loc, err := page.Location()
		if err != nil {
			return nil, model.NewRunError(model.ErrExtractionTimeout, err, "reading location")
		}
		if hostOf(loc) == f.Config.LoginHost {
			return nil, errBounced
		}
	}

	// Either a results table or the explicit empty indicator counts as a
	// loaded page.
	ready := fmt.Sprintf(
		`document.querySelector("table") !== null || document.body.innerText.includes(%s)`,
		jsString(emptyIndicator))
	if err := page.WaitFunc(ready, f.Config.WaitTimeout); err != nil {
		return nil, model.NewRunError(model.ErrExtractionTimeout, err,
			"neither results table nor empty indicator appeared")
	}

	rows, err := page.ReadTable("table")
	if err != nil {
		return nil, model.NewRunError(model.ErrExtractionTimeout, err, "extracting table rows")
	}
	return rowsToRecords(rows), nil
}

func (f *BrowserFetcher) transactionsURL(q Query, pageNo int) string {
	v := url.Values{}
	if len(q.Merchants) > 0 {
		v.Set("cardAcceptorIdCode", q.Merchants[0])
	}
	v.Set("cardType", "All Cards")
	v.Set("transactionCategory", "All Types")
	v.Set("name", f.Config.MerchantName)
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("page", strconv.Itoa(pageNo))
	v.Set("transactionTimeFrom", q.Window.From.Format(windowFormat))
	v.Set("transactionTimeTo", q.Window.To.Format(windowFormat))
	return f.Config.PortalURL + f.Config.TransactionsPath + "?" + v.Encode()
}

// rowsToRecords maps rendered cells onto raw field names by column
// position. Short rows keep whatever cells they have.
func rowsToRecords(rows [][]string) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(rows))
	for _, cells := range rows {
		rec := model.RawRecord{}
		for i, name := range tableColumns {
			if i < len(cells) {
				rec[name] = cells[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

// nextBrowserCredential finds the first browser-capable credential below
// the top of the chain.
func nextBrowserCredential(chain []auth.Credential) (auth.Credential, bool) {
	for _, cred := range chain[1:] {
		if cred.Browser() {
			return cred, true
		}
	}
	return auth.Credential{}, false
}

// fillAndSubmitScript fills the credential fields and submits the form:
// a visible sign-in control first, then the nearest form, then Enter.
func fillAndSubmitScript(username, password string) string {
	return fmt.Sprintf(`(() => {
		const user = document.querySelector(%s);
		const pass = document.querySelector('input[type="password"]');
		const fill = (el, value) => {
			el.focus();
			el.value = value;
			el.dispatchEvent(new Event("input", { bubbles: true }));
			el.dispatchEvent(new Event("change", { bubbles: true }));
		};
		fill(user, %s);
		fill(pass, %s);

		const button = Array.from(document.querySelectorAll("button, input[type=submit]"))
			.find(el => el.offsetParent !== null && /sign in|log in|continue/i.test(el.textContent || el.value || ""));
		if (button) { button.click(); return; }
		const form = pass.closest("form");
		if (form) { form.requestSubmit ? form.requestSubmit() : form.submit(); return; }
		pass.dispatchEvent(new KeyboardEvent("keydown", { key: "Enter", bubbles: true }));
	})()`, jsString(loginFieldSelector), jsString(username), jsString(password))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
