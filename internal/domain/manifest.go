package domain

import "time"

// RunStatus records how a run ended.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusDryRun      RunStatus = "dry_run"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusFailed      RunStatus = "failed"
)

// Keys of RunManifest.Files.
const (
	FileRawCatalog = "raw_gamma"
	FileMarketsCSV = "markets_csv"
	FilePriceBatch = "raw_clob_batches"
	FilePricesCSV  = "prices_csv"
	FileLatestCSV  = "latest_csv"
	FileManifest   = "manifest"
)

// RunManifest is the bookkeeping record of one snapshot run. It is written
// for every run, including dry runs and runs aborted by a fatal error.
type RunManifest struct {
	RunID                          string            `json:"run_id"`
	Status                         RunStatus         `json:"status"`
	Error                          string            `json:"error,omitempty"`
	StartTS                        time.Time         `json:"start_ts_utc"`
	EndTS                          time.Time         `json:"end_ts_utc"`
	DurationSeconds                float64           `json:"duration_seconds"`
	Date                           string            `json:"date"`
	MarketsTotal                   int               `json:"markets_total"`
	MarketsWithTokens              int               `json:"markets_with_tokens"`
	MarketsSkippedNoTokens         int               `json:"markets_skipped_no_tokens"`
	MarketsSkippedMismatchedArrays int               `json:"markets_skipped_mismatched_arrays"`
	MarketsNotClobTradable         int               `json:"markets_not_clob_tradable"`
	TokensTotal                    int               `json:"tokens_total"`
	TokensPricedOK                 int               `json:"tokens_priced_ok"`
	TokensMissingPrice             int               `json:"tokens_missing_price"`
	APIErrors                      int               `json:"api_errors"`
	PriceBatches                   int               `json:"price_batches"`
	Files                          map[string]string `json:"files"`
}

// Finish stamps the end time, duration and final status.
func (m *RunManifest) Finish(status RunStatus, err error, now time.Time) {
	m.Status = status
	if err != nil {
		m.Error = err.Error()
	}
	m.EndTS = now.UTC()
	m.DurationSeconds = m.EndTS.Sub(m.StartTS).Seconds()
}

// ApplyStats copies pricing counters into the manifest.
func (m *RunManifest) ApplyStats(s PriceStats) {
	m.TokensPricedOK = s.OK
	m.TokensMissingPrice = s.Missing
	m.APIErrors = s.APIErrors
	m.PriceBatches = s.Batches
}
