// Package auth decides how a run authenticates against the reporting
// portal. Several credential sources may be configured at once; resolution
// follows a fixed precedence so a run's behavior is deterministic.
package auth

import (
	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Mode identifies which credential source won resolution.
type Mode string

const (
	// ModeTokenOverride is a bearer token supplied for this run only.
	ModeTokenOverride Mode = "token-override"
	// ModeToken is the configured long-lived bearer token.
	ModeToken Mode = "token"
	// ModeStorageToken is a bearer token recovered from a stored
	// local-storage snapshot.
	ModeStorageToken Mode = "storage-token"
	// ModeCookies drives a browser session from a stored cookie header.
	ModeCookies Mode = "cookies"
	// ModePassword drives an interactive browser login.
	ModePassword Mode = "password"
)

// Credential is one resolved way to authenticate. Token modes use the
// direct API; cookie and password modes need the browser.
type Credential struct {
	Mode  Mode
	Token string

	// CookieHeader is a raw Cookie header for the reporting origin.
	CookieHeader string

	Username string
	Password string

	// Storage carries the parsed local-storage snapshot so browser-driven
	// sessions can seed it regardless of which mode won.
	Storage map[string]string
}

// Browser reports whether this credential requires the browser-driven
// fetch strategy.
func (c Credential) Browser() bool {
	return c.Mode == ModeCookies || c.Mode == ModePassword
}

// Resolve evaluates every configured credential source in precedence order
// and returns the usable ones, strongest first. The first entry is
// authoritative for the run; later entries exist only for the single
// login-bounce fallback hop. A malformed storage snapshot disables that
// source and the chain continues; no usable source at all is
// MissingCredentials.
func Resolve(cfg config.AuthConfig, overrideToken string, log zerolog.Logger) ([]Credential, error) {
	snapshot, snapErr := parseSnapshot(cfg.StorageSnapshot)
	if snapErr != nil {
		log.Warn().Err(snapErr).Msg("storage snapshot unusable, skipping source")
	}

	var chain []Credential

	if overrideToken != "" {
		chain = append(chain, Credential{Mode: ModeTokenOverride, Token: overrideToken})
	}
	if cfg.Token != "" {
		chain = append(chain, Credential{Mode: ModeToken, Token: cfg.Token})
	}
	if snapshot != nil {
		if tok := snapshot.bearerToken(); tok != "" {
			chain = append(chain, Credential{Mode: ModeStorageToken, Token: tok, Storage: snapshot.entries})
		}
	}

	var storage map[string]string
	if snapshot != nil {
		storage = snapshot.entries
	}
	if cfg.CookieHeader != "" {
		chain = append(chain, Credential{Mode: ModeCookies, CookieHeader: cfg.CookieHeader, Storage: storage})
	}
	if cfg.Username != "" && cfg.Password != "" {
		chain = append(chain, Credential{
			Mode:     ModePassword,
			Username: cfg.Username,
			Password: cfg.Password,
			Storage:  storage,
		})
	}

	if len(chain) == 0 {
		return nil, model.NewRunError(model.ErrMissingCredentials, snapErr,
			"no credential source configured")
	}

	log.Debug().Str("mode", string(chain[0].Mode)).Int("fallbacks", len(chain)-1).
		Msg("credentials resolved")
	return chain, nil
}
