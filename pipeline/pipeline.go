// Package pipeline drives the scrape: catalog pages to products to images,
// one unit of work at a time, isolating failures so a dead page, product, or
// image degrades the output set instead of aborting the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-popcultcha/config"
	"github.com/aluiziolira/go-scrape-popcultcha/downloader"
	"github.com/aluiziolira/go-scrape-popcultcha/models"
	"github.com/aluiziolira/go-scrape-popcultcha/parser"
	"github.com/aluiziolira/go-scrape-popcultcha/scraper"
)

// OutputWriter receives a manifest row for every image written to disk.
type OutputWriter interface {
	Write(records []*models.ImageRecord) error
	Close() error
	Validate() error
}

// Pipeline walks the catalog sequentially and downloads every product image.
type Pipeline struct {
	cfg        *config.Config
	scraper    *scraper.Scraper
	downloader *downloader.ImageDownloader
	manifest   OutputWriter
	sleep      func(time.Duration)
}

// NewPipeline wires the pipeline stages together. manifest may be nil when
// no manifest output is wanted.
func NewPipeline(cfg *config.Config, s *scraper.Scraper, d *downloader.ImageDownloader, manifest OutputWriter) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		scraper:    s,
		downloader: d,
		manifest:   manifest,
		sleep:      time.Sleep,
	}
}

// WithSleeper replaces the inter-product sleep, so tests can run without
// wall-clock waits.
func (p *Pipeline) WithSleeper(sleep func(time.Duration)) {
	if sleep != nil {
		p.sleep = sleep
	}
}

// Run executes the full scrape and returns the report. The report is always
// populated, including when ctx is cancelled mid-run. The product index is
// global across pages, 1-based, and never reused: a failed product leaves a
// gap in the file set rather than shifting its successors.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	report := &models.RunReport{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		report.EndTime = time.Now()
	}()

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return report, fmt.Errorf("create output directory %q: %w", p.cfg.OutputDir, err)
	}

	productIndex := 0
	totalPages := p.cfg.MaxPages

	for page := 1; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		pageURL := scraper.PageURL(p.cfg.BaseURL, page)
		listing, err := p.scraper.Listing(pageURL)
		if err != nil {
			report.PagesFailed++
			p.recordFailure(report, pageURL, err)
			slog.Error("page fetch failed",
				slog.Int("page", page),
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			continue
		}
		report.PagesFetched++

		// The first page advertises the real catalog depth; the
		// configured bound only ever shrinks.
		if page == 1 && listing.TotalPages < totalPages {
			totalPages = listing.TotalPages
		}

		slog.Info("page scraped",
			slog.Int("page", page),
			slog.Int("total_pages", totalPages),
			slog.Int("products", len(listing.Products)),
		)

		for _, product := range listing.Products {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			productIndex++
			p.processProduct(ctx, report, productIndex, product)
			if p.cfg.ProductDelay > 0 && ctx.Err() == nil {
				p.sleep(p.cfg.ProductDelay)
			}
		}
	}

	return report, nil
}

func (p *Pipeline) processProduct(ctx context.Context, report *models.RunReport, index int, product models.ProductLink) {
	title := parser.SanitizeFilename(product.Title)

	imageURLs, err := p.scraper.ProductImages(product.URL)
	if err != nil {
		report.ProductsFailed++
		p.recordFailure(report, product.URL, err)
		slog.Error("product fetch failed",
			slog.Int("index", index),
			slog.String("title", title),
			slog.String("url", product.URL),
			slog.Any("error", err),
		)
		return
	}

	report.ProductsProcessed++
	report.ImagesFound += len(imageURLs)
	p.scraper.Metrics.IncProduct()
	slog.Info("processing product",
		slog.Int("index", index),
		slog.String("title", title),
		slog.Int("images", len(imageURLs)),
	)

	for i, rawURL := range imageURLs {
		if ctx.Err() != nil {
			return
		}
		p.downloadImage(ctx, report, index, title, product.URL, i+1, rawURL)
	}
}

func (p *Pipeline) downloadImage(ctx context.Context, report *models.RunReport, productIndex int, title, productURL string, imageIndex int, rawURL string) {
	imageURL := parser.ResolveURL(rawURL)
	filename := fmt.Sprintf("%d_%s_%d%s", productIndex, title, imageIndex, parser.FileExtension(imageURL))
	dest := filepath.Join(p.cfg.OutputDir, filename)

	result := p.downloader.Download(ctx, imageURL, dest)
	if !result.Written {
		report.ImagesFailed++
		classified := scraper.Classify(result.Err, result.StatusCode)
		p.recordFailure(report, imageURL, classified)
		p.scraper.Metrics.IncError(scraper.ErrorLabel(classified))
		slog.Error("image download failed",
			slog.Int("index", productIndex),
			slog.Int("image", imageIndex),
			slog.String("url", imageURL),
			slog.Int("status", result.StatusCode),
			slog.Any("error", result.Err),
		)
		return
	}

	report.ImagesDownloaded++
	report.Files = append(report.Files, dest)
	p.scraper.Metrics.IncImage()
	slog.Debug("downloaded image",
		slog.Int("index", productIndex),
		slog.Int("image", imageIndex),
		slog.String("path", dest),
		slog.Int64("bytes", result.Bytes),
	)

	if p.manifest != nil {
		record := &models.ImageRecord{
			ProductIndex: productIndex,
			ProductTitle: title,
			ProductURL:   productURL,
			ImageIndex:   imageIndex,
			SourceURL:    imageURL,
			Path:         dest,
			SizeBytes:    result.Bytes,
			DownloadedAt: time.Now(),
		}
		if err := p.manifest.Write([]*models.ImageRecord{record}); err != nil {
			slog.Error("manifest write failed", slog.String("path", dest), slog.Any("error", err))
		}
	}
}

func (p *Pipeline) recordFailure(report *models.RunReport, url string, err error) {
	report.FailedURLs = append(report.FailedURLs, url)
	report.ErrorsByType[scraper.ErrorLabel(err)]++
}
