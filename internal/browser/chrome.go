package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// waitPoll is the interval WaitFunc re-evaluates its predicate at.
const waitPoll = 250 * time.Millisecond

// ChromeOptions configures the headless Chrome session.
type ChromeOptions struct {
	UserAgent string
}

// chromePage drives a single headless Chrome page through chromedp.
type chromePage struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// NewChrome launches a headless Chrome and returns a Page bound to one tab.
// The returned Factory shape lets the fetcher stay engine-agnostic.
func NewChrome(opts ChromeOptions) Factory {
	return func(ctx context.Context) (Page, error) {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.DisableGPU,
		)
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
		pageCtx, pageCancel := chromedp.NewContext(allocCtx)

		p := &chromePage{
			ctx:     pageCtx,
			cancels: []context.CancelFunc{pageCancel, allocCancel},
		}

		// Start the browser process now so launch failures surface here
		// rather than on the first navigation.
		if err := chromedp.Run(pageCtx); err != nil {
			p.Close()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		return p, nil
	}
}

func (p *chromePage) Navigate(u string) error {
	if err := chromedp.Run(p.ctx, chromedp.Navigate(u)); err != nil {
		return fmt.Errorf("navigating to %s: %w", u, err)
	}
	return nil
}

func (p *chromePage) WaitVisible(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitFunc(script string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate("!!("+script+")", &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPoll):
		}
	}
}

func (p *chromePage) ReadTable(selector string) ([][]string, error) {
	sel, err := json.Marshal(selector + " tbody tr")
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(tr =>
			Array.from(tr.querySelectorAll("td")).map(td => td.innerText.trim()))`, sel)

	var rows [][]string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &rows)); err != nil {
		return nil, fmt.Errorf("reading table %s: %w", selector, err)
	}
	return rows, nil
}

func (p *chromePage) SetCookies(origin, header string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("parsing origin %s: %w", origin, err)
	}
	host := u.Hostname()

	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, pair := range strings.Split(header, ";") {
			name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
			if !found || name == "" {
				continue
			}
			err := network.SetCookie(name, value).
				WithDomain(host).
				WithPath("/").
				WithSecure(true).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("setting cookie %s: %w", name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) SetStorage(entries map[string]string) error {
	var b strings.Builder
	for k, v := range entries {
		key, _ := json.Marshal(k)
		val, _ := json.Marshal(v)
		fmt.Fprintf(&b, "localStorage.setItem(%s, %s);", key, val)
	}
	if b.Len() == 0 {
		return nil
	}
	return p.Evaluate("(() => {"+b.String()+"})()", nil)
}

func (p *chromePage) Evaluate(script string, out any) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, out))
}

func (p *chromePage) Location() (string, error) {
	var loc string
	if err := chromedp.Run(p.ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) Close() error {
	for _, cancel := range p.cancels {
		cancel()
	}
	return nil
}
