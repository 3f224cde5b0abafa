package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// ErrNoCategoryColumn is returned when a CSV to be filtered has no
// category column.
var ErrNoCategoryColumn = errors.New("artifact: input has no category column")

// FilterMarketsByCategory copies the header and every row of a markets CSV
// whose category contains category (case-insensitive) to out. It returns the
// number of rows written.
func FilterMarketsByCategory(in, out, category string) (int, error) {
	f, err := os.Open(in)
	if err != nil {
		return 0, fmt.Errorf("artifact: open %s: %w", in, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("artifact: %s is empty", in)
	}
	if err != nil {
		return 0, fmt.Errorf("artifact: read header: %w", err)
	}
	col := slices.Index(header, "category")
	if col < 0 {
		return 0, ErrNoCategoryColumn
	}

	target := strings.ToLower(strings.TrimSpace(category))
	matched := 0
	err = writeAtomic(out, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if col < len(row) && strings.Contains(strings.ToLower(row[col]), target) {
				if err := cw.Write(row); err != nil {
					return err
				}
				matched++
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}
