package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-popcultcha/config"
	"github.com/aluiziolira/go-scrape-popcultcha/dataset"
	"github.com/aluiziolira/go-scrape-popcultcha/downloader"
	"github.com/aluiziolira/go-scrape-popcultcha/models"
	"github.com/aluiziolira/go-scrape-popcultcha/pipeline"
	"github.com/aluiziolira/go-scrape-popcultcha/scraper"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	defaultCfg := config.DefaultConfig()
	urlDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("SCRAPER_URL"); ok {
		urlDefault = value
	}
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	datasetDefault := defaultCfg.DatasetName
	if value, ok := config.EnvString("SCRAPER_DATASET"); ok {
		datasetDefault = value
	}
	datasetDBDefault := defaultCfg.DatasetDB
	if value, ok := config.EnvString("SCRAPER_DATASET_DB"); ok {
		datasetDBDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	listingURL := flag.String("url", urlDefault, "Catalog listing URL to scrape")
	maxPages := flag.Int("pages", pagesDefault, "Maximum catalog pages to scrape")
	delayMs := flag.Int("delay", 0, "Delay between page requests (milliseconds)")
	randomDelayMs := flag.Int("random-delay", 0, "Random jitter added to delay (milliseconds)")
	downloadDelayMs := flag.Int("download-delay", int(defaultCfg.DownloadDelay.Milliseconds()), "Pause after each image download (milliseconds)")
	productDelayMs := flag.Int("product-delay", 0, "Pause between products (milliseconds)")
	timeoutMs := flag.Int("timeout", int(defaultCfg.Timeout.Milliseconds()), "HTTP request timeout (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	outputDir := flag.String("output", outputDefault, "Directory for downloaded images")
	manifestFormat := flag.String("manifest-format", defaultCfg.ManifestFormat, "Manifest format: csv, jsonl, dual, or none")
	datasetName := flag.String("dataset", datasetDefault, "Dataset name to register (empty disables registration)")
	datasetDB := flag.String("dataset-db", datasetDBDefault, "Path to the dataset catalog database")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	setLogLoggerLevel(level.Level())

	cfg := buildConfigFromFlags(*listingURL, *maxPages, *delayMs, *randomDelayMs, *downloadDelayMs, *productDelayMs, *timeoutMs, *respectRobots, *outputDir, *manifestFormat, *datasetName, *datasetDB, *verbose, *metricsAddr)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.String("output", cfg.OutputDir),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}
	d := downloader.New(cfg)

	manifest, err := createWriter(cfg.ManifestFormat, cfg.OutputDir)
	if err != nil {
		slog.Error("creating manifest writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if manifest == nil {
			return
		}
		if err := manifest.Close(); err != nil {
			slog.Error("close manifest", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current item")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(cfg, s, d, manifest)
	report, err := p.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Warn("scrape interrupted, keeping partial results")
	default:
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if manifest != nil {
		if err := manifest.Validate(); err != nil {
			slog.Warn("manifest validation", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(report, cfg.OutputDir)

	if cfg.DatasetName != "" {
		if len(report.Files) == 0 {
			slog.Warn("no images downloaded, skipping dataset registration",
				slog.String("dataset", cfg.DatasetName))
		} else if err := registerDataset(cfg, report); err != nil {
			slog.Error("dataset registration failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func buildConfigFromFlags(baseURL string, maxPages, delayMs, randomDelayMs, downloadDelayMs, productDelayMs, timeoutMs int, respectRobots bool, outputDir, manifestFormat, datasetName, datasetDB string, verbose bool, metricsAddr string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.MaxPages = maxPages
	cfg.PageDelay = time.Duration(delayMs) * time.Millisecond
	cfg.RandomDelay = time.Duration(randomDelayMs) * time.Millisecond
	cfg.DownloadDelay = time.Duration(downloadDelayMs) * time.Millisecond
	cfg.ProductDelay = time.Duration(productDelayMs) * time.Millisecond
	cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.RespectRobotsTxt = respectRobots
	cfg.OutputDir = outputDir
	cfg.ManifestFormat = strings.ToLower(manifestFormat)
	cfg.DatasetName = datasetName
	cfg.DatasetDB = datasetDB
	cfg.Verbose = verbose
	cfg.MetricsAddr = metricsAddr
	return cfg
}

func createWriter(format, outputDir string) (pipeline.OutputWriter, error) {
	switch format {
	case "csv":
		return pipeline.NewCSVWriter(filepath.Join(outputDir, "manifest.csv"))
	case "jsonl":
		return pipeline.NewJSONWriter(filepath.Join(outputDir, "manifest.jsonl"))
	case "dual":
		return pipeline.NewDualWriter(filepath.Join(outputDir, "manifest.csv"), filepath.Join(outputDir, "manifest.jsonl"))
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}
}

func registerDataset(cfg *config.Config, report *models.RunReport) error {
	// Glob per extension actually written, so the manifest files sitting in
	// the same directory never end up in the dataset.
	exts := report.ExtensionsWritten()
	patterns := make([]string, 0, len(exts))
	for _, ext := range exts {
		patterns = append(patterns, filepath.Join(cfg.OutputDir, "*"+ext))
	}

	catalog, err := dataset.Open(cfg.DatasetDB)
	if err != nil {
		return fmt.Errorf("open dataset catalog: %w", err)
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			slog.Error("close dataset catalog", slog.Any("error", err))
		}
	}()

	ds, err := catalog.CreateFromImages(cfg.DatasetName, patterns, dataset.CreateOptions{
		Overwrite:  true,
		Persistent: true,
	})
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}

	slog.Info("dataset registered",
		slog.String("name", ds.Name),
		slog.Int("samples", ds.SampleCount),
		slog.String("db", catalog.Path()),
	)
	return nil
}

func printSummary(report *models.RunReport, outputDir string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Pages:         %d fetched, %d failed\n", report.PagesFetched, report.PagesFailed)
	fmt.Printf("  Products:      %d processed, %d failed\n", report.ProductsProcessed, report.ProductsFailed)
	fmt.Printf("  Images:        %d downloaded, %d failed (%d found)\n",
		report.ImagesDownloaded, report.ImagesFailed, report.ImagesFound)
	successRate := 0.0
	if report.ImagesFound > 0 {
		successRate = float64(report.ImagesDownloaded) / float64(report.ImagesFound) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Failed URLs:   %d\n", len(report.FailedURLs))
	if len(report.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", report.ErrorsByType)
	}
	duration := report.Duration()
	fmt.Printf("  Duration:      %v\n", duration)
	imagesPerSec := 0.0
	if duration.Seconds() > 0 {
		imagesPerSec = float64(report.ImagesDownloaded) / duration.Seconds()
	}
	fmt.Printf("  Images/sec:    %.2f\n", imagesPerSec)
	fmt.Printf("  Output dir:    %s\n", outputDir)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
