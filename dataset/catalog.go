// Package dataset keeps a SQLite-backed catalog of image datasets, so files
// produced by a scrape can be registered under a name and queried across
// runs.
package dataset

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBName is used when no catalog path is configured.
const DefaultDBName = "popcultcha_datasets.db"

var (
	ErrDatasetExists   = errors.New("dataset already exists")
	ErrDatasetNotFound = errors.New("dataset not found")
)

// Catalog wraps the SQLite handle holding datasets and their samples.
type Catalog struct {
	*sql.DB
	path string
}

// Dataset is a named collection of image samples.
type Dataset struct {
	ID          int64
	Name        string
	Persistent  bool
	CreatedAt   time.Time
	SampleCount int
}

// Sample is a single registered image file.
type Sample struct {
	ID        int64
	Filepath  string
	SizeBytes int64
	CreatedAt time.Time
}

// CreateOptions control dataset creation.
type CreateOptions struct {
	// Overwrite replaces an existing dataset with the same name instead
	// of failing.
	Overwrite bool
	// Persistent keeps the dataset in the catalog after Close. Datasets
	// created without it are removed when the catalog shuts down.
	Persistent bool
}

func openDB(dbPath string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection so per-connection PRAGMAs and :memory: state hold.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return sqlDB, nil
}

// Open opens or creates the catalog database at the given path.
func Open(path string) (*Catalog, error) {
	sqlDB, err := openDB(path)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		DB:   sqlDB,
		path: path,
	}

	if err := c.InitSchema(); err != nil {
		_ = c.DB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// InitSchema initializes the catalog schema.
func (c *Catalog) InitSchema() error {
	_, err := c.Exec(schema)
	return err
}

// Close removes non-persistent datasets and closes the database.
func (c *Catalog) Close() error {
	if err := c.pruneEphemeral(); err != nil {
		_ = c.DB.Close()
		return err
	}
	return c.DB.Close()
}

func (c *Catalog) pruneEphemeral() error {
	tx, err := c.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM samples WHERE dataset_id IN (SELECT dataset_id FROM datasets WHERE persistent = 0)"); err != nil {
		return fmt.Errorf("failed to prune samples: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM datasets WHERE persistent = 0"); err != nil {
		return fmt.Errorf("failed to prune datasets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prune: %w", err)
	}
	return nil
}

// CreateFromImages registers every regular file matching the glob patterns
// as a new dataset and returns it. Without Overwrite an existing name is an
// error.
func (c *Catalog) CreateFromImages(name string, patterns []string, opts CreateOptions) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name is required")
	}

	files, err := collectFiles(patterns)
	if err != nil {
		return nil, err
	}

	var existingID int64
	err = c.QueryRow("SELECT dataset_id FROM datasets WHERE name = ?", name).Scan(&existingID)
	switch {
	case err == nil:
		if !opts.Overwrite {
			return nil, fmt.Errorf("dataset %q: %w", name, ErrDatasetExists)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check existing dataset: %w", err)
	}

	tx, err := c.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if existingID != 0 {
		if _, err := tx.Exec("DELETE FROM samples WHERE dataset_id = ?", existingID); err != nil {
			return nil, fmt.Errorf("failed to delete existing samples: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM datasets WHERE dataset_id = ?", existingID); err != nil {
			return nil, fmt.Errorf("failed to delete existing dataset: %w", err)
		}
	}

	result, err := tx.Exec("INSERT INTO datasets (name, persistent) VALUES (?, ?)", name, opts.Persistent)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dataset: %w", err)
	}
	datasetID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset ID: %w", err)
	}

	for _, f := range files {
		if _, err := tx.Exec("INSERT INTO samples (dataset_id, filepath, size_bytes) VALUES (?, ?, ?)",
			datasetID, f.path, f.size); err != nil {
			return nil, fmt.Errorf("failed to insert sample %s: %w", f.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dataset: %w", err)
	}

	return c.Get(name)
}

// Get returns the dataset with the given name.
func (c *Catalog) Get(name string) (*Dataset, error) {
	var ds Dataset
	err := c.QueryRow(`
		SELECT d.dataset_id, d.name, d.persistent, d.created_at,
			(SELECT COUNT(*) FROM samples s WHERE s.dataset_id = d.dataset_id)
		FROM datasets d
		WHERE d.name = ?
	`, name).Scan(&ds.ID, &ds.Name, &ds.Persistent, &ds.CreatedAt, &ds.SampleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrDatasetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &ds, nil
}

// List returns every dataset name in the catalog, sorted.
func (c *Catalog) List() ([]string, error) {
	rows, err := c.Query("SELECT name FROM datasets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan dataset name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datasets: %w", err)
	}

	return names, nil
}

// Samples returns the registered files for a dataset in insertion order.
func (c *Catalog) Samples(name string) ([]Sample, error) {
	ds, err := c.Get(name)
	if err != nil {
		return nil, err
	}

	rows, err := c.Query(`
		SELECT sample_id, filepath, size_bytes, created_at
		FROM samples
		WHERE dataset_id = ?
		ORDER BY sample_id
	`, ds.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.Filepath, &s.SizeBytes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}

	return samples, nil
}

// Delete removes a dataset and its samples.
func (c *Catalog) Delete(name string) error {
	ds, err := c.Get(name)
	if err != nil {
		return err
	}

	tx, err := c.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM samples WHERE dataset_id = ?", ds.ID); err != nil {
		return fmt.Errorf("failed to delete samples: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM datasets WHERE dataset_id = ?", ds.ID); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

type imageFile struct {
	path string
	size int64
}

// collectFiles expands the glob patterns, keeping regular files only and
// dropping duplicates across patterns.
func collectFiles(patterns []string) ([]imageFile, error) {
	var files []imageFile
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", match, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			seen[match] = true
			files = append(files, imageFile{path: match, size: info.Size()})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}
