// Package artifact owns the on-disk snapshot layout and the CSV/JSON
// writers that fill it. Every file is written to a temp file in the target
// directory and renamed into place, so readers never see a partial file.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves artifact paths for one run date under a root directory.
//
//	raw/gamma/events_{date}.json
//	raw/clob/prices_batches/markets_{date}/batch_NNNN.json
//	markets/markets_{date}.csv
//	prices/prices_{date}.csv
//	prices/latest.csv
//	run/run_manifest_{date}.json
//	kalshi/markets_{date}.csv
type Layout struct {
	Root string
	Date string
}

// NewLayout returns the layout for date (YYYY-MM-DD) under root.
func NewLayout(root, date string) Layout {
	return Layout{Root: root, Date: date}
}

func (l Layout) RawCatalog() string {
	return filepath.Join(l.Root, "raw", "gamma", fmt.Sprintf("events_%s.json", l.Date))
}

func (l Layout) BatchDir() string {
	return filepath.Join(l.Root, "raw", "clob", "prices_batches", fmt.Sprintf("markets_%s", l.Date))
}

func (l Layout) BatchFile(n int) string {
	return filepath.Join(l.BatchDir(), fmt.Sprintf("batch_%04d.json", n))
}

func (l Layout) MarketsCSV() string {
	return filepath.Join(l.Root, "markets", fmt.Sprintf("markets_%s.csv", l.Date))
}

func (l Layout) PricesCSV() string {
	return filepath.Join(l.Root, "prices", fmt.Sprintf("prices_%s.csv", l.Date))
}

func (l Layout) LatestCSV() string {
	return filepath.Join(l.Root, "prices", "latest.csv")
}

func (l Layout) Manifest() string {
	return filepath.Join(l.Root, "run", fmt.Sprintf("run_manifest_%s.json", l.Date))
}

func (l Layout) KalshiCSV() string {
	return filepath.Join(l.Root, "kalshi", fmt.Sprintf("markets_%s.csv", l.Date))
}

// EnsureDirs creates every directory of the snapshot layout.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(l.MarketsCSV()),
		filepath.Dir(l.PricesCSV()),
		filepath.Dir(l.Manifest()),
		filepath.Dir(l.RawCatalog()),
		l.BatchDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("artifact: mkdir %s: %w", d, err)
		}
	}
	return nil
}

// ResetBatchDir removes the batch files an earlier run for the same date left
// behind. Other files in the directory are kept.
func (l Layout) ResetBatchDir() error {
	stale, err := filepath.Glob(filepath.Join(l.BatchDir(), "batch_*.json"))
	if err != nil {
		return fmt.Errorf("artifact: list batches: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("artifact: remove %s: %w", p, err)
		}
	}
	return nil
}

// Rel returns path relative to the layout root, with forward slashes.
func (l Layout) Rel(path string) (string, error) {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
