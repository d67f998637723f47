package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundholdings/browser"
	"fundholdings/cache"
	"fundholdings/config"
	"fundholdings/report"
	"fundholdings/scraper"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options collects the flags shared by every command
type options struct {
	configPath string
	output     string
	loader     string
	headless   bool
	strictRows bool
	redisAddr  string
	cacheTTL   time.Duration
	verbose    bool
	port       string
}

// closingLoader is a page loader holding a resource released at exit
type closingLoader interface {
	scraper.Loader
	Close() error
}

func main() {
	env := config.LoadEnv()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "fundholdings",
		Short: "Scrape fund top holdings into a spreadsheet",
		Long: `fundholdings visits each configured fund page, extracts the top holdings
table and writes one worksheet per fund into an xlsx workbook.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", env.ConfigPath, "Fund registry file (JSON5); built-in funds when empty")
	flags.StringVar(&opts.loader, "loader", "chrome", "Page loader: chrome or http")
	flags.BoolVar(&opts.headless, "headless", true, "Run Chrome without a window")
	flags.BoolVar(&opts.strictRows, "strict-rows", false, "Abort on table rows with a single cell instead of skipping them")
	flags.StringVar(&opts.redisAddr, "redis-addr", env.RedisAddr, "Redis address for caching rendered pages")
	flags.DurationVar(&opts.cacheTTL, "cache-ttl", 0, "How long cached pages stay valid; 0 disables the cache")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output")
	flags.StringVarP(&opts.output, "output", "o", env.Output, "Output workbook (default from config, funds.xlsx)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scrape",
		Short: "Scrape all funds and write the workbook (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), opts)
		},
	})
	rootCmd.AddCommand(newServeCmd(opts, env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.WithError(err).Error("fundholdings failed")
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stdout)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func rowPolicy(cfg *config.Config, opts *options) scraper.RowPolicy {
	if opts.strictRows || cfg.StrictRows {
		return scraper.FailOnMalformed
	}
	return scraper.SkipMalformed
}

func openLoader(ctx context.Context, cfg *config.Config, opts *options) (closingLoader, error) {
	readyTimeout, err := cfg.ReadyTimeoutDuration()
	if err != nil {
		return nil, err
	}

	switch opts.loader {
	case "http":
		return browser.NewHTTPLoader(readyTimeout), nil
	case "chrome":
		termsTimeout, err := cfg.TermsTimeoutDuration()
		if err != nil {
			return nil, err
		}
		session, err := browser.Open(ctx, browser.Options{
			Headless:     opts.headless,
			ReadyTimeout: readyTimeout,
			Consent: browser.ConsentOptions{
				LandingURL:    cfg.LandingURL,
				CookieAPI:     cfg.Consent.CookieAPI,
				TermsSelector: cfg.Consent.TermsSelector,
				TermsTimeout:  termsTimeout,
			},
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("unknown loader %q (must be chrome or http)", opts.loader)
}

func outputPath(cfg *config.Config, opts *options) string {
	if opts.output != "" {
		return opts.output
	}
	if cfg.Output != "" {
		return cfg.Output
	}
	return "funds.xlsx"
}

func runScrape(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	loader, err := openLoader(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer loader.Close()

	pages := cache.New(opts.redisAddr, opts.cacheTTL)
	defer pages.Close()

	svc := scraper.NewService(loader, pages, rowPolicy(cfg, opts))
	result, err := svc.Run(ctx, cfg.Funds)
	if err != nil {
		return err
	}

	path := outputPath(cfg, opts)
	if err := report.Write(path, report.Entries(result.Tables)); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"sheets":  len(result.Tables),
		"missing": len(result.Missing),
	}).Infof("Wrote %s", path)
	return nil
}
