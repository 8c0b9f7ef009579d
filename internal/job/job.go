// Package job composes one report run: resolve the reporting window and
// credentials, fetch, normalize, render and deliver. Runs are independent;
// nothing is shared between concurrent runs and every failure is converted
// into a structured outcome at the boundary.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/auth"
	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/fetch"
	"github.com/autotech-nz/paymark-reporter/internal/mail"
	"github.com/autotech-nz/paymark-reporter/internal/model"
	"github.com/autotech-nz/paymark-reporter/internal/normalize"
	"github.com/autotech-nz/paymark-reporter/internal/report"
)

// Options are the per-run overrides recognized by the invocation surface.
type Options struct {
	// Debug short-circuits before rendering and sending; the outcome
	// carries counts and diagnostics only.
	Debug bool

	// Pagination overrides.
	Page  int
	Limit int

	// Token is a per-call bearer override, the strongest credential.
	Token string

	// Accept overrides the API content-negotiation candidates.
	Accept string

	// From/To override the default local-day window (UTC instants).
	From time.Time
	To   time.Time

	// Merchants overrides the configured cardAcceptorIdCodes filter.
	Merchants []string
}

// Fetcher is the retrieval collaborator; satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, chain []auth.Credential, q fetch.Query) (fetch.Result, error)
}

// Runner executes report runs against fixed collaborators.
type Runner struct {
	cfg     *config.Config
	fetcher Fetcher
	mailer  mail.Sender
	log     zerolog.Logger
	now     func() time.Time
}

// NewRunner wires a runner from its collaborators.
func NewRunner(cfg *config.Config, fetcher Fetcher, mailer mail.Sender, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, fetcher: fetcher, mailer: mailer, log: log, now: time.Now}
}

// Run executes one report job. It never panics or returns an error; the
// outcome encodes success or the failing stage. No mail is ever sent for a
// run that failed any earlier stage.
func (r *Runner) Run(ctx context.Context, opts Options) model.Outcome {
	log := r.log.With().Str("run", uuid.NewString()).Logger()

	win, err := r.window(opts)
	if err != nil {
		return model.Failure(err)
	}
	log.Info().Str("phase", "window").Str("date", win.Label).
		Time("from", win.From).Time("to", win.To).Msg("reporting window resolved")

	// Mail configuration problems must surface before any network work;
	// in debug mode no mail is sent so an incomplete mail setup is fine.
	if !opts.Debug && !r.cfg.Mail.MailReady() {
		return model.Failure(model.NewRunError(model.ErrMissingMailConfig, nil,
			"mail delivery is not fully configured"))
	}

	chain, err := auth.Resolve(r.cfg.Auth, opts.Token, log)
	if err != nil {
		return model.Failure(err)
	}

	result, err := r.fetcher.Fetch(ctx, chain, r.query(win, opts))
	if err != nil {
		return model.Failure(err)
	}
	log.Info().Str("phase", "fetched").Int("records", len(result.Records)).Msg("records retrieved")

	txns := normalize.Records(result.Records)

	if opts.Debug {
		out := model.Outcome{
			OK:       true,
			Count:    len(txns),
			DateNZ:   win.Label,
			AuthMode: string(result.Mode),
			Accept:   result.Accept,
		}
		if len(result.Records) > 0 {
			out.SampleRecord = result.Records[0]
		}
		return out
	}

	artifacts := report.Render(txns, win.Label)

	msg := mail.Message{
		From:    r.cfg.Mail.From,
		To:      r.cfg.Mail.To,
		Subject: fmt.Sprintf("Paymark Transactions — %s (NZ)", win.Label),
		Text: fmt.Sprintf("Attached are today's transactions (%s NZ). Count: %d.",
			win.Label, artifacts.Count),
		Attachments: []mail.Attachment{
			{
				Filename:    fmt.Sprintf("transactions_%s.csv", win.Label),
				Content:     []byte(artifacts.CSV),
				ContentType: "text/csv; charset=utf-8",
			},
			{
				Filename:    fmt.Sprintf("summary_%s.svg", win.Label),
				Content:     artifacts.SummarySVG,
				ContentType: "image/svg+xml",
			},
		},
	}
	if err := r.mailer.Send(msg); err != nil {
		return model.Failure(err)
	}
	log.Info().Str("phase", "sent").Int("count", artifacts.Count).Msg("report delivered")

	return model.Outcome{OK: true, Sent: true, Count: artifacts.Count, DateNZ: win.Label}
}

func (r *Runner) window(opts Options) (model.TimeWindow, error) {
	if !opts.From.IsZero() && !opts.To.IsZero() {
		return model.WindowBetween(opts.From, opts.To)
	}
	return model.DayWindow(r.now())
}

func (r *Runner) query(win model.TimeWindow, opts Options) fetch.Query {
	merchants := opts.Merchants
	if len(merchants) == 0 {
		merchants = []string{r.cfg.Merchant.CardAcceptorIDCode}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = r.cfg.Fetch.PageLimit
	}
	return fetch.Query{
		Window:    win,
		Merchants: merchants,
		Page:      opts.Page,
		Limit:     limit,
		MaxPages:  r.cfg.Fetch.MaxPages,
		Accept:    opts.Accept,
	}
}
