package domain

import "context"

// Snapshot is the finished output of one run, handed to every Publisher after
// the manifest is on disk.
type Snapshot struct {
	OutDir   string
	Manifest RunManifest
	Markets  []MarketRecord
	Prices   []PriceResult
}

// Publisher pushes a finished snapshot somewhere outside the local artifact
// tree. Failures are reported but never fail the run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, snap Snapshot) error
}
