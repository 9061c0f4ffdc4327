// Package models defines data structures for the scraper.
package models

import (
	"path/filepath"
	"sort"
	"time"
)

// ProductLink is one product entry discovered on a catalog listing page.
type ProductLink struct {
	URL   string
	Title string
}

// Listing holds the parsed contents of a single catalog page.
type Listing struct {
	PageURL    string
	Products   []ProductLink
	TotalPages int
}

// ImageRecord describes one image successfully written to disk.
type ImageRecord struct {
	ProductIndex int       `csv:"product_index" json:"product_index"`
	ProductTitle string    `csv:"product_title" json:"product_title"`
	ProductURL   string    `csv:"product_url" json:"product_url"`
	ImageIndex   int       `csv:"image_index" json:"image_index"`
	SourceURL    string    `csv:"source_url" json:"source_url"`
	Path         string    `csv:"path" json:"path"`
	SizeBytes    int64     `csv:"size_bytes" json:"size_bytes"`
	DownloadedAt time.Time `csv:"downloaded_at" json:"downloaded_at"`
}

// RunReport holds the overall result of a pipeline run.
type RunReport struct {
	StartTime         time.Time
	EndTime           time.Time
	PagesFetched      int
	PagesFailed       int
	ProductsProcessed int
	ProductsFailed    int
	ImagesFound       int
	ImagesDownloaded  int
	ImagesFailed      int
	Files             []string
	FailedURLs        []string
	ErrorsByType      map[string]int
}

// Duration reports the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ExtensionsWritten returns the distinct file extensions of the written
// files, sorted. Used to derive dataset registration globs from what the run
// actually produced.
func (r *RunReport) ExtensionsWritten() []string {
	seen := make(map[string]struct{}, len(r.Files))
	for _, file := range r.Files {
		ext := filepath.Ext(file)
		if ext == "" {
			continue
		}
		seen[ext] = struct{}{}
	}
	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
