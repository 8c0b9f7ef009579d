package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved configuration for one report job. The core
// never reads environment variables itself; everything it needs is in here.
type Config struct {
	Merchant MerchantConfig `yaml:"merchant"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	Fetch    FetchConfig    `yaml:"fetch"`
}

// MerchantConfig identifies the merchant whose transactions are reported.
type MerchantConfig struct {
	CardAcceptorIDCode string `yaml:"card_acceptor_id_code"`
	Name               string `yaml:"name"`
}

// UpstreamConfig locates the reporting portal and its API.
type UpstreamConfig struct {
	APIBase     string `yaml:"api_base"`     // e.g. https://api.paymark.nz
	PortalURL   string `yaml:"portal_url"`   // reporting origin
	LoginHost   string `yaml:"login_host"`   // host the portal bounces to when unauthenticated
	Accept      string `yaml:"accept"`       // optional fixed Accept header for the API
	UserAgent   string `yaml:"user_agent"`   // browser strategy UA
	Transaction string `yaml:"transactions"` // portal transactions view path
}

// AuthConfig carries every credential source the resolver may consider.
// All fields are optional; precedence is decided by the resolver.
type AuthConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CookieHeader is a raw Cookie header value for the reporting origin.
	CookieHeader string `yaml:"cookie_header"`

	// StorageSnapshot is a JSON key-value dump of the portal's browser
	// local storage, captured from an authenticated session.
	StorageSnapshot string `yaml:"storage_snapshot"`
}

// MailConfig is the outbound report delivery target.
type MailConfig struct {
	To       string `yaml:"to"`
	From     string `yaml:"from"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_pass"`
}

// FetchConfig bounds retrieval behavior.
type FetchConfig struct {
	PageLimit   int           `yaml:"page_limit"`   // rows requested per page
	MaxPages    int           `yaml:"max_pages"`    // hard pagination ceiling
	WaitTimeout time.Duration `yaml:"wait_timeout"` // per wait-step bound
	HTTPTimeout time.Duration `yaml:"http_timeout"` // per API request bound
}

// Default returns a Config with the fixed merchant and portal values the
// job was built for. Credentials and mail settings still have to come from
// a config file or the environment.
func Default() *Config {
	return &Config{
		Merchant: MerchantConfig{
			CardAcceptorIDCode: "10243212",
			Name:               "AUTO TECH REPAIR&SERVICES",
		},
		Upstream: UpstreamConfig{
			APIBase:     "https://api.paymark.nz",
			PortalURL:   "https://insights.paymark.co.nz",
			LoginHost:   "login.paymark.co.nz",
			UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Transaction: "/transaction",
		},
		Fetch: FetchConfig{
			PageLimit:   100,
			MaxPages:    20,
			WaitTimeout: 2 * time.Minute,
			HTTPTimeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file, layered over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// FromEnv layers the deployment environment variables over cfg. Empty
// variables leave the existing value alone.
func (c *Config) FromEnv() *Config {
	setIf(&c.Auth.Username, "PAYMARK_USER")
	setIf(&c.Auth.Password, "PAYMARK_PASS")
	setIf(&c.Auth.Token, "PAYMARK_TOKEN")
	setIf(&c.Auth.CookieHeader, "PAYMARK_COOKIE")
	setIf(&c.Auth.StorageSnapshot, "PAYMARK_STORAGE")
	setIf(&c.Merchant.CardAcceptorIDCode, "PAYMARK_MERCHANT")
	setIf(&c.Mail.To, "MAIL_TO")
	setIf(&c.Mail.From, "MAIL_FROM")
	setIf(&c.Mail.SMTPHost, "SMTP_HOST")
	setIf(&c.Mail.SMTPUser, "SMTP_USER")
	setIf(&c.Mail.SMTPPass, "SMTP_PASS")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.SMTPPort = port
		}
	}
	return c
}

func setIf(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// MailReady reports whether mail delivery is fully configured.
func (m MailConfig) MailReady() bool {
	return m.To != "" && m.From != "" && m.SMTPHost != "" && m.SMTPPort != 0 &&
		m.SMTPUser != "" && m.SMTPPass != ""
}

// Addr returns the SMTP dial address.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.SMTPHost, m.SMTPPort)
}

// Presence reports which configuration values are set without revealing
// them. Secret values show as "(set)"; addresses and hosts are not secret
// and show as-is.
func (c *Config) Presence() map[string]string {
	mark := func(v string) string {
		if v == "" {
			return ""
		}
		return "(set)"
	}
	return map[string]string{
		"PAYMARK_USER":    mark(c.Auth.Username),
		"PAYMARK_PASS":    mark(c.Auth.Password),
		"PAYMARK_TOKEN":   mark(c.Auth.Token),
		"PAYMARK_COOKIE":  mark(c.Auth.CookieHeader),
		"PAYMARK_STORAGE": mark(c.Auth.StorageSnapshot),
		"MAIL_TO":         c.Mail.To,
		"MAIL_FROM":       c.Mail.From,
		"SMTP_HOST":       c.Mail.SMTPHost,
		"SMTP_PORT":       portString(c.Mail.SMTPPort),
		"SMTP_USER":       mark(c.Mail.SMTPUser),
		"SMTP_PASS":       mark(c.Mail.SMTPPass),
	}
}

func portString(p int) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(p)
}
