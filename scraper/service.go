package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fundholdings/browser"
	"fundholdings/cache"
	"fundholdings/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Loader renders fund pages. browser.Session and browser.HTTPLoader implement it.
type Loader interface {
	Establish(ctx context.Context) (browser.ConsentReport, error)
	Load(ctx context.Context, url string, readyJS string) (string, error)
}

// Result holds the funds that produced a table and the ones that did not
type Result struct {
	Tables  []FundTable
	Missing []config.FundSource
}

// Service drives the consent gate and the per-fund scrape loop
type Service struct {
	loader      Loader
	cache       *cache.Cache
	policy      RowPolicy
	established bool
}

// NewService creates a scraper service. c may be nil.
func NewService(loader Loader, c *cache.Cache, policy RowPolicy) *Service {
	return &Service{
		loader: loader,
		cache:  c,
		policy: policy,
	}
}

// Establish passes the consent gate once per service
func (s *Service) Establish(ctx context.Context) error {
	if s.established {
		return nil
	}

	logrus.Info("Accepting website terms...")
	report, err := s.loader.Establish(ctx)
	if err != nil {
		return err
	}
	for _, step := range report.Steps() {
		entry := logrus.WithFields(logrus.Fields{"step": step.Step, "outcome": step.Outcome.String()})
		switch step.Outcome {
		case browser.Performed:
			entry.Infof("Accepted %s", step.Step)
		case browser.NotApplicable:
			entry.Infof("No %s prompt to accept", step.Step)
		case browser.Failed:
			entry.WithError(step.Err).Warnf("Could not accept %s, continuing", step.Step)
		}
	}

	s.established = true
	return nil
}

// Run visits every fund in order. Funds without a table are reported in
// Result.Missing; any other failure stops the run.
func (s *Service) Run(ctx context.Context, funds []config.FundSource) (*Result, error) {
	if err := s.Establish(ctx); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, fund := range funds {
		table, err := s.ScrapeFund(ctx, fund)
		if errors.Is(err, ErrTableNotFound) {
			logrus.WithField("fund", fund.DisplayName()).WithError(err).Warn("No holdings table, skipping fund")
			result.Missing = append(result.Missing, fund)
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Tables = append(result.Tables, *table)
	}

	return result, nil
}

// ScrapeFund loads one fund page and extracts its holdings table
func (s *Service) ScrapeFund(ctx context.Context, fund config.FundSource) (*FundTable, error) {
	logrus.Infof("Processing fund: %s", fund.URL)
	locator := LocatorFor(fund)

	htmlContent, err := cache.Memoize(ctx, s.cache, "page:"+fund.URL, func() (string, error) {
		return s.loader.Load(ctx, fund.URL, locator.ReadyJS())
	})
	if errors.Is(err, browser.ErrNotReady) {
		// Extraction on the markup so far decides whether the fund is missing
		logrus.WithField("fund", fund.DisplayName()).WithError(err).Warn("Page did not settle in time")
	} else if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML of %s: %w", fund.URL, err)
	}

	table, err := Extract(doc, fund, locator, s.policy)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"fund": fund.DisplayName(), "rows": len(table.Rows)}).Info("Extracted holdings")
	return table, nil
}
