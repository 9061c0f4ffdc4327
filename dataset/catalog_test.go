package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// setupTestCatalog creates an in-memory catalog for testing
func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test catalog: %v", err)
	}
	t.Cleanup(func() { c.DB.Close() })
	return c
}

func writeImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("fake image bytes"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func TestCreateFromImages(t *testing.T) {
	c := setupTestCatalog(t)
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg", "1_Hulk_2.jpg", "2_Thor_1.jpg", "3_Loki_1.png")
	writeImages(t, dir, "notes.txt")

	patterns := []string{
		filepath.Join(dir, "*.jpg"),
		filepath.Join(dir, "*.png"),
	}
	ds, err := c.CreateFromImages("marvel-bobbleheads", patterns, CreateOptions{Persistent: true})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}

	if ds.Name != "marvel-bobbleheads" {
		t.Errorf("name = %q, want %q", ds.Name, "marvel-bobbleheads")
	}
	if !ds.Persistent {
		t.Errorf("dataset should be persistent")
	}
	if ds.SampleCount != 4 {
		t.Errorf("sample count = %d, want 4", ds.SampleCount)
	}

	samples, err := c.Samples("marvel-bobbleheads")
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("samples = %d, want 4", len(samples))
	}
	for _, s := range samples {
		if filepath.Ext(s.Filepath) == ".txt" {
			t.Errorf("non-image file registered: %s", s.Filepath)
		}
		if s.SizeBytes == 0 {
			t.Errorf("sample %s has zero size", s.Filepath)
		}
	}
}

func TestCreateFromImagesSkipsDirectoriesAndDuplicates(t *testing.T) {
	c := setupTestCatalog(t)
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// The catch-all pattern matches the directory and repeats the jpg match.
	patterns := []string{
		filepath.Join(dir, "*.jpg"),
		filepath.Join(dir, "*"),
	}
	ds, err := c.CreateFromImages("dedup", patterns, CreateOptions{})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	if ds.SampleCount != 1 {
		t.Errorf("sample count = %d, want 1", ds.SampleCount)
	}
}

func TestCreateFromImagesNoMatches(t *testing.T) {
	c := setupTestCatalog(t)
	patterns := []string{filepath.Join(t.TempDir(), "*.jpg")}

	ds, err := c.CreateFromImages("empty", patterns, CreateOptions{})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	if ds.SampleCount != 0 {
		t.Errorf("sample count = %d, want 0", ds.SampleCount)
	}

	samples, err := c.Samples("empty")
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples = %v, want none", samples)
	}
}

func TestCreateFromImagesConflict(t *testing.T) {
	c := setupTestCatalog(t)
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg")
	patterns := []string{filepath.Join(dir, "*.jpg")}

	if _, err := c.CreateFromImages("taken", patterns, CreateOptions{}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := c.CreateFromImages("taken", patterns, CreateOptions{})
	if !errors.Is(err, ErrDatasetExists) {
		t.Fatalf("second create err = %v, want ErrDatasetExists", err)
	}
}

func TestCreateFromImagesOverwrite(t *testing.T) {
	c := setupTestCatalog(t)
	oldDir := t.TempDir()
	writeImages(t, oldDir, "1_Hulk_1.jpg", "1_Hulk_2.jpg")
	newDir := t.TempDir()
	newPaths := writeImages(t, newDir, "1_Thor_1.jpg")

	if _, err := c.CreateFromImages("replace-me", []string{filepath.Join(oldDir, "*.jpg")}, CreateOptions{}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	ds, err := c.CreateFromImages("replace-me", []string{filepath.Join(newDir, "*.jpg")}, CreateOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite create: %v", err)
	}
	if ds.SampleCount != 1 {
		t.Fatalf("sample count after overwrite = %d, want 1", ds.SampleCount)
	}

	samples, err := c.Samples("replace-me")
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 1 || samples[0].Filepath != newPaths[0] {
		t.Fatalf("samples after overwrite = %+v, want only %s", samples, newPaths[0])
	}
}

func TestGetMissingDataset(t *testing.T) {
	c := setupTestCatalog(t)

	if _, err := c.Get("nope"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("get err = %v, want ErrDatasetNotFound", err)
	}
	if _, err := c.Samples("nope"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("samples err = %v, want ErrDatasetNotFound", err)
	}
}

func TestListDatasets(t *testing.T) {
	c := setupTestCatalog(t)
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg")
	patterns := []string{filepath.Join(dir, "*.jpg")}

	for _, name := range []string{"zeta", "alpha"} {
		if _, err := c.CreateFromImages(name, patterns, CreateOptions{}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	names, err := c.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "zeta"}) {
		t.Fatalf("names = %v, want [alpha zeta]", names)
	}
}

func TestDeleteDataset(t *testing.T) {
	c := setupTestCatalog(t)
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg")
	patterns := []string{filepath.Join(dir, "*.jpg")}

	if _, err := c.CreateFromImages("doomed", patterns, CreateOptions{}); err != nil {
		t.Fatalf("create doomed: %v", err)
	}
	if _, err := c.CreateFromImages("survivor", patterns, CreateOptions{}); err != nil {
		t.Fatalf("create survivor: %v", err)
	}

	if err := c.Delete("doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get("doomed"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("get deleted err = %v, want ErrDatasetNotFound", err)
	}

	survivor, err := c.Get("survivor")
	if err != nil {
		t.Fatalf("get survivor: %v", err)
	}
	if survivor.SampleCount != 1 {
		t.Fatalf("survivor samples = %d, want 1", survivor.SampleCount)
	}
}

func TestClosePrunesEphemeralDatasets(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	dir := t.TempDir()
	writeImages(t, dir, "1_Hulk_1.jpg", "2_Thor_1.jpg")
	patterns := []string{filepath.Join(dir, "*.jpg")}

	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.CreateFromImages("keep", patterns, CreateOptions{Persistent: true}); err != nil {
		t.Fatalf("create keep: %v", err)
	}
	if _, err := c.CreateFromImages("scratch", patterns, CreateOptions{}); err != nil {
		t.Fatalf("create scratch: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	keep, err := reopened.Get("keep")
	if err != nil {
		t.Fatalf("get keep after reopen: %v", err)
	}
	if keep.SampleCount != 2 {
		t.Fatalf("keep samples = %d, want 2", keep.SampleCount)
	}
	if _, err := reopened.Get("scratch"); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("scratch should be pruned on close, got err = %v", err)
	}
}
