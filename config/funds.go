// Package config holds the fund registry and run settings
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// DefaultHeading is the heading text searched for when a fund has no table id
const DefaultHeading = "Top 10 Positions"

// FundSource describes one fund page to scrape
type FundSource struct {
	URL     string `json:"url"`
	TableID string `json:"table_id,omitempty"` // Stable element id, switches to id lookup
	Heading string `json:"heading,omitempty"`  // Heading text, defaults to DefaultHeading
	Name    string `json:"name,omitempty"`     // Display and sheet name
}

// DisplayName returns the configured name or one derived from the URL
func (f FundSource) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return FundNameFromURL(f.URL)
}

// ConsentConfig holds the selectors used to get past the cookie and terms gate
type ConsentConfig struct {
	CookieAPI     string `json:"cookie_api"`     // Global JS function accepting all cookie categories
	TermsSelector string `json:"terms_selector"` // CSS selector of the terms acceptance control
	TermsTimeout  string `json:"terms_timeout"`  // How long to wait for the terms control
}

// Config is the full run configuration
type Config struct {
	LandingURL   string        `json:"landing_url"`
	Output       string        `json:"output"`
	ReadyTimeout string        `json:"ready_timeout"`
	StrictRows   bool          `json:"strict_rows"`
	Consent      ConsentConfig `json:"consent"`
	Funds        []FundSource  `json:"funds"`
}

// Default returns the compiled-in Polar Capital configuration
func Default() *Config {
	return &Config{
		LandingURL:   "https://www.polarcapital.co.uk/gb/individual/",
		Output:       "funds.xlsx",
		ReadyTimeout: "15s",
		Consent: ConsentConfig{
			CookieAPI:     "CookieInformation.submitAllCategories",
			TermsSelector: "a.Btn.-accept",
			TermsTimeout:  "10s",
		},
		Funds: []FundSource{
			{URL: "https://www.polarcapital.co.uk/gb/individual/Our-Funds/Artificial-Intelligence/#/Portfolio"},
			{URL: "https://www.polarcapital.co.uk/gb/individual/Our-Funds/Emerging-Markets-Healthcare/#/Portfolio"},
			{URL: "https://www.polarcapital.co.uk/gb/individual/Our-Funds/Financial-Opportunities/#/Portfolio"},
		},
	}
}

// Load reads a JSON5 config file on top of the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Funds from the file replace the default list rather than appending to it
	cfg.Funds = nil
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config can drive a run
func (c *Config) Validate() error {
	if len(c.Funds) == 0 {
		return fmt.Errorf("config has no funds")
	}
	// An empty landing_url means the site has no consent gate
	if c.LandingURL != "" {
		if err := checkURL(c.LandingURL); err != nil {
			return fmt.Errorf("landing_url: %w", err)
		}
	}
	for i, fund := range c.Funds {
		if err := checkURL(fund.URL); err != nil {
			return fmt.Errorf("funds[%d].url: %w", i, err)
		}
		if fund.DisplayName() == "" {
			return fmt.Errorf("funds[%d]: no name given and none derivable from %s", i, fund.URL)
		}
	}
	if _, err := c.ReadyTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.TermsTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// ReadyTimeoutDuration parses the page readiness timeout
func (c *Config) ReadyTimeoutDuration() (time.Duration, error) {
	return parseDuration("ready_timeout", c.ReadyTimeout, 15*time.Second)
}

// TermsTimeoutDuration parses the terms control wait
func (c *Config) TermsTimeoutDuration() (time.Duration, error) {
	return parseDuration("consent.terms_timeout", c.Consent.TermsTimeout, 10*time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// FundNameFromURL turns ".../Our-Funds/Artificial-Intelligence/#/Portfolio"
// into "Artificial Intelligence Fund". Returns "" when the URL has no fund segment.
func FundNameFromURL(raw string) string {
	_, rest, found := strings.Cut(raw, "Our-Funds/")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/#")
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	return strings.ReplaceAll(name, "-", " ") + " Fund"
}
