package s3blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alanyoungcy/pmuniverse/internal/artifact"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// MirrorConfig controls object naming and upload strategy.
type MirrorConfig struct {
	Prefix string
	// MultipartThreshold is the file size in bytes at or above which the
	// multipart manager is used. Zero disables multipart uploads.
	MultipartThreshold int64
	PartSize           int64
}

// Mirror copies every artifact of a finished run to object storage.
type Mirror struct {
	writer domain.BlobWriter
	cfg    MirrorConfig
	logger *slog.Logger
}

// NewMirror creates a Mirror uploading through writer.
func NewMirror(writer domain.BlobWriter, cfg MirrorConfig, logger *slog.Logger) *Mirror {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Mirror{
		writer: writer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "s3_mirror")),
	}
}

// Name implements domain.Publisher.
func (m *Mirror) Name() string { return "s3" }

// ObjectKey returns the key of an artifact: {prefix}/{date}/{rel}.
func ObjectKey(prefix, date, rel string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, date, strings.TrimPrefix(filepath.ToSlash(rel), "/"))
	return path.Join(parts...)
}

// Publish uploads each file listed in the manifest. Directories are
// expanded one level. Every file is attempted; failures are joined.
func (m *Mirror) Publish(ctx context.Context, snap domain.Snapshot) error {
	layout := artifact.NewLayout(snap.OutDir, snap.Manifest.Date)

	files, err := manifestFiles(snap.Manifest.Files)
	if err != nil {
		return fmt.Errorf("s3blob: list artifacts: %w", err)
	}

	var errs []error
	uploaded := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rel, err := layout.Rel(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("s3blob: %s: %w", f, err))
			continue
		}
		key := ObjectKey(m.cfg.Prefix, snap.Manifest.Date, rel)
		if err := m.upload(ctx, f, key); err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
	}

	m.logger.InfoContext(ctx, "mirrored snapshot",
		slog.String("run_id", snap.Manifest.RunID),
		slog.Int("uploaded", uploaded),
		slog.Int("failed", len(files)-uploaded),
	)
	return errors.Join(errs...)
}

func (m *Mirror) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("s3blob: open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: stat %s: %w", file, err)
	}

	if m.cfg.MultipartThreshold > 0 && info.Size() >= m.cfg.MultipartThreshold {
		m.logger.DebugContext(ctx, "multipart upload",
			slog.String("key", key),
			slog.Int64("bytes", info.Size()),
		)
		return m.writer.PutMultipart(ctx, key, f, m.cfg.PartSize)
	}
	return m.writer.Put(ctx, key, f, contentType(file))
}

// manifestFiles flattens manifest file entries into a sorted, de-duplicated
// list of regular files.
func manifestFiles(entries map[string]string) ([]string, error) {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, p := range entries {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		dirents, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, d := range dirents {
			if d.Type().IsRegular() {
				add(filepath.Join(p, d.Name()))
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
