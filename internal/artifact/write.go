package artifact

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// MarketsHeader is the fixed column order of the markets CSV.
var MarketsHeader = []string{
	"pulled_at_utc", "source", "market_id", "slug", "question", "category",
	"condition_id", "active", "closed", "end_date_utc", "outcomes_json",
	"clob_token_ids_json", "volume_num", "liquidity_num",
}

// PricesHeader is the fixed column order of the prices CSV.
var PricesHeader = []string{
	"snapshot_ts_utc", "source", "market_id", "slug", "question", "token_id",
	"outcome", "bid", "ask", "mid", "active", "status", "volume_num",
	"liquidity_num",
}

// ExchangeHeader is the fixed column order of the secondary exchange CSV.
var ExchangeHeader = []string{
	"pulled_at", "ticker", "event_ticker", "market_type", "title", "subtitle",
	"yes_sub_title", "no_sub_title", "status", "open_time", "close_time",
	"expected_expiration_time", "yes_bid", "yes_ask", "no_bid", "no_ask",
	"last_price", "volume_24h", "liquidity", "open_interest", "category",
	"series_ticker",
}

// writeAtomic streams into a temp file next to path and renames it over
// path once fill succeeds.
func writeAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("artifact: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("artifact: flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: rename into %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteBatches writes one compact JSON file per raw price batch and returns
// the paths written.
func WriteBatches(l Layout, batches []domain.RawBatch) ([]string, error) {
	paths := make([]string, 0, len(batches))
	for _, b := range batches {
		path := l.BatchFile(b.BatchNum)
		err := writeAtomic(path, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetEscapeHTML(false)
			return enc.Encode(b)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSV(path string, header []string, rows func(cw *csv.Writer) error) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := rows(cw); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteMarketsCSV writes the markets table.
func WriteMarketsCSV(path string, records []domain.MarketRecord) error {
	return writeCSV(path, MarketsHeader, func(cw *csv.Writer) error {
		for i := range records {
			r := &records[i]
			row := []string{
				formatTime(r.PulledAt),
				r.Source,
				r.MarketID,
				r.Slug,
				r.Question,
				r.Category,
				r.ConditionID,
				formatBool(r.Active),
				formatBool(r.Closed),
				r.EndDateUTC,
				formatList(r.Outcomes),
				formatList(r.TokenIDs),
				formatFloat(r.VolumeNum),
				formatFloat(r.LiquidityNum),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WritePricesCSV writes the prices table.
func WritePricesCSV(path string, results []domain.PriceResult) error {
	return writeCSV(path, PricesHeader, func(cw *csv.Writer) error {
		for i := range results {
			r := &results[i]
			row := []string{
				formatTime(r.SnapshotTS),
				r.Source,
				r.MarketID,
				r.Slug,
				r.Question,
				r.TokenID,
				r.Outcome,
				r.Bid,
				r.Ask,
				r.Mid,
				formatBool(r.Active),
				string(r.Status),
				formatFloat(r.VolumeNum),
				formatFloat(r.LiquidityNum),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteExchangeCSV writes the secondary exchange markets table.
func WriteExchangeCSV(path string, markets []domain.ExchangeMarket) error {
	return writeCSV(path, ExchangeHeader, func(cw *csv.Writer) error {
		for i := range markets {
			m := &markets[i]
			row := []string{
				formatTime(m.PulledAt),
				m.Ticker,
				m.EventTicker,
				m.MarketType,
				m.Title,
				m.Subtitle,
				m.YesSubTitle,
				m.NoSubTitle,
				m.Status,
				m.OpenTime,
				m.CloseTime,
				m.ExpectedExpirationTime,
				formatFloat(m.YesBid),
				formatFloat(m.YesAsk),
				formatFloat(m.NoBid),
				formatFloat(m.NoAsk),
				formatFloat(m.LastPrice),
				formatFloat(m.Volume24H),
				formatFloat(m.Liquidity),
				formatFloat(m.OpenInterest),
				m.Category,
				m.SeriesTicker,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// CopyFile replaces dst with a copy of src.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("artifact: open %s: %w", src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// ReadManifest loads a manifest written by WriteJSON.
func ReadManifest(path string) (domain.RunManifest, error) {
	var m domain.RunManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("artifact: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("artifact: decode manifest: %w", err)
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Cell formatting
// --------------------------------------------------------------------------

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// formatBool writes True/False, the spelling downstream consumers expect;
// unknown is empty.
func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "True"
	}
	return "False"
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// formatList renders a list as compact JSON; a missing list is "null".
func formatList(items []string) string {
	if items == nil {
		return "null"
	}
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "null"
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
