package scraper

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-popcultcha/config"
	"github.com/aluiziolira/go-scrape-popcultcha/models"
	"github.com/aluiziolira/go-scrape-popcultcha/parser"
	"github.com/gocolly/colly/v2"
)

// Scraper wraps the colly collector used to fetch catalog listing and
// product detail pages. Fetches are synchronous and issued one at a time.
type Scraper struct {
	cfg        *config.Config
	collector  *colly.Collector
	strategies []parser.ImageStrategy
	Metrics    *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	// Revisits stay allowed: the orchestrator schedules every fetch
	// explicitly, and reruns must be able to hit the same URLs again.
	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.PageDelay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Scraper{
		cfg:        cfg,
		collector:  collector,
		strategies: parser.DefaultImageStrategies,
		Metrics:    NewMetrics(),
	}, nil
}

// WithTransport replaces the HTTP transport used for page fetches.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Listing fetches one catalog page and returns its product links, resolved
// to absolute URLs, along with the page count advertised by the pagination
// block.
func (s *Scraper) Listing(pageURL string) (*models.Listing, error) {
	listing := &models.Listing{PageURL: pageURL, TotalPages: 1}

	err := s.fetch(pageURL, func(r *colly.Response) error {
		doc, err := parser.Document(r.Body)
		if err != nil {
			return fmt.Errorf("parse listing page: %w", err)
		}
		for _, link := range parser.ProductLinks(doc) {
			listing.Products = append(listing.Products, models.ProductLink{
				URL:   r.Request.AbsoluteURL(link.Href),
				Title: link.Title,
			})
		}
		listing.TotalPages = parser.TotalPages(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.IncPage()
	return listing, nil
}

// ProductImages fetches a product detail page and returns its candidate
// image URLs in document order. An empty result is valid.
func (s *Scraper) ProductImages(productURL string) ([]string, error) {
	var urls []string
	err := s.fetch(productURL, func(r *colly.Response) error {
		doc, err := parser.Document(r.Body)
		if err != nil {
			return fmt.Errorf("parse detail page: %w", err)
		}
		urls = parser.ImageURLs(doc, s.strategies)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// fetch clones the base collector, issues a single blocking GET, and hands
// the response body to handle. Errors from the transport, from non-success
// statuses, and from handle itself are classified and returned.
func (s *Scraper) fetch(pageURL string, handle func(*colly.Response) error) error {
	c := s.collector.Clone()

	var fetchErr error
	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		s.Metrics.IncRequest("started")
		slog.Debug("fetching", slog.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
		if err := handle(r); err != nil {
			fetchErr = err
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		requestURL := pageURL
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				requestURL = r.Request.URL.String()
			}
		}
		fetchErr = Classify(err, statusCode)
		category := ErrorLabel(fetchErr)
		s.Metrics.IncError(category)
		slog.Error("request error",
			slog.String("url", requestURL),
			slog.String("category", category),
			slog.Any("error", err),
		)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = Classify(err, 0)
		s.Metrics.IncError(ErrorLabel(fetchErr))
	}
	return fetchErr
}

// PageURL builds the address of a catalog page. Page 1 is the base URL
// itself; later pages set the p query parameter.
func PageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?p=%d", base, page)
	}
	query := parsed.Query()
	query.Set("p", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
