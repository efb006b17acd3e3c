// Command ingest runs one ingestion pass from the command line: either a
// recorded batch file (json, csv or xlsx) or a live search on a platform.
// The run reports are printed as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	ingestapp "github.com/pricedragon/backend/internal/application/ingestion"
	matchingapp "github.com/pricedragon/backend/internal/application/matching"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/infrastructure/cache"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/pricedragon/backend/internal/infrastructure/logger"
	"github.com/pricedragon/backend/internal/infrastructure/persistence"
	"github.com/pricedragon/backend/internal/infrastructure/platform"
	"go.uber.org/zap"
)

const (
	exitOK = iota
	exitFailed
	exitErrorRatio
)

type options struct {
	platform       string
	file           string
	query          string
	rebuildMatches bool
	maxErrorRatio  float64
	logLevel       string
}

func main() {
	var opts options
	flag.StringVar(&opts.platform, "platform", "", "Platform name, or \"all\" for every live adapter")
	flag.StringVar(&opts.file, "file", "", "Recorded batch to ingest (.json, .csv or .xlsx)")
	flag.StringVar(&opts.query, "query", "", "Search term for a live run")
	flag.BoolVar(&opts.rebuildMatches, "rebuild-matches", false, "Rebuild the whole match graph after ingesting")
	flag.Float64Var(&opts.maxErrorRatio, "max-error-ratio", -1, "Exit with status 2 when a run's error ratio exceeds this (default from config)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	if opts.platform == "" || (opts.file == "" && opts.query == "" && !opts.rebuildMatches) {
		printUsage()
		return exitFailed
	}

	_ = godotenv.Load()

	// Reports own stdout
	log, err := logger.New(&logger.Config{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer func() { _ = logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", zap.Error(err))
		return exitFailed
	}
	if opts.maxErrorRatio < 0 {
		opts.maxErrorRatio = cfg.Ingestion.MaxErrorRatio
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel("warn"), logger.WithIgnoreRecordNotFoundError(true)))
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return exitFailed
	}
	defer func() { _ = db.Close() }()
	if cfg.Database.Driver == "sqlite" || cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Error("Failed to migrate schema", zap.Error(err))
			return exitFailed
		}
	}

	locker, err := cache.NewRunLockerFactory(cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		log.Error("Failed to create run locker", zap.Error(err))
		return exitFailed
	}
	defer func() { _ = locker.Close() }()

	identityStore := persistence.NewGormIdentityStore(db.DB)
	matcher := matchingapp.NewMatcherService(identityStore, persistence.NewGormMatchEdgeRepository(db.DB),
		matching.NewScorer(cfg.Matching.Policy()), log)

	// No worker pool here, so edges are always refreshed inline
	orchestrator := ingestapp.NewOrchestrator(
		ingestion.NewNormalizer(ingestion.WithDefaultCurrency(cfg.Ingestion.DefaultCurrency)),
		persistence.NewGormTransactionScope(db.DB),
		persistence.NewGormRunReportRepository(db.DB),
		locker,
		ingestapp.Config{
			SyncMatching:  true,
			RunLockTTL:    cfg.Ingestion.RunLockTTL,
			RunTimeout:    cfg.Ingestion.RunTimeout,
			SnippetLength: cfg.Ingestion.SnippetLength,
			MaxErrorRatio: opts.maxErrorRatio,
		},
		log.Named("ingestion"),
	)
	orchestrator.SetMatchRefresher(matcher)

	scrapers, err := selectScrapers(opts, cfg.Scrapers, log)
	if err != nil {
		log.Error("Invalid source", zap.Error(err))
		return exitFailed
	}

	failed := false
	var reports []*ingestion.RunReport
	if len(scrapers) > 0 {
		reports, err = orchestrator.RunAll(ctx, scrapers, opts.query, ingestapp.RunOptions{})
		if err != nil {
			log.Error("Ingestion failed", zap.Error(err))
			failed = true
		}
	}

	out := struct {
		Runs    []*ingestion.RunReport     `json:"runs"`
		Rebuild *matchingapp.RebuildReport `json:"rebuild,omitempty"`
	}{Runs: compact(reports)}

	if opts.rebuildMatches && ctx.Err() == nil {
		out.Rebuild, err = matcher.RebuildAll(ctx)
		if err != nil {
			log.Error("Match rebuild failed", zap.Error(err))
			failed = true
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(out); encErr != nil {
		log.Error("Failed to write report", zap.Error(encErr))
		return exitFailed
	}

	if failed {
		return exitFailed
	}
	for _, report := range out.Runs {
		if report.ErrorRatio() > opts.maxErrorRatio {
			log.Warn("Error ratio above limit",
				zap.String("platform", report.Platform),
				zap.Float64("error_ratio", report.ErrorRatio()),
				zap.Float64("max_error_ratio", opts.maxErrorRatio),
			)
			return exitErrorRatio
		}
	}
	return exitOK
}

// selectScrapers resolves the source flags. A file takes precedence over a
// live query; rebuild-only invocations return no scrapers.
func selectScrapers(opts options, cfg config.ScrapersConfig, log *zap.Logger) ([]ingestion.Scraper, error) {
	if opts.file != "" {
		if strings.EqualFold(opts.platform, "all") {
			return nil, fmt.Errorf("a batch file belongs to a single platform")
		}
		s, err := platform.LoadStaticScraper(opts.platform, opts.file)
		if err != nil {
			return nil, err
		}
		return []ingestion.Scraper{s}, nil
	}
	if opts.query == "" {
		return nil, nil
	}

	registry := platform.NewDefaultRegistry(cfg, log.Named("scraper"))
	if strings.EqualFold(opts.platform, "all") {
		return registry.All(), nil
	}
	s, err := registry.Get(opts.platform)
	if err != nil {
		return nil, err
	}
	return []ingestion.Scraper{s}, nil
}

func compact(reports []*ingestion.RunReport) []*ingestion.RunReport {
	out := make([]*ingestion.RunReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ingest -platform <name> [options]

Sources (one of):
  -file <path>        Ingest a recorded batch (.json, .csv, .xlsx)
  -query <term>       Search the live platform ("-platform all" runs every adapter)
  -rebuild-matches    Recompute the whole match graph (may be combined with a source)

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Exit status: 0 ok, 1 failure, 2 a run exceeded -max-error-ratio.
`)
}
