package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// RunNotifier is a domain.Publisher that turns a finished run into a chat
// message.
type RunNotifier struct {
	notifier *Notifier
}

// NewRunNotifier wraps n.
func NewRunNotifier(n *Notifier) *RunNotifier {
	return &RunNotifier{notifier: n}
}

func (r *RunNotifier) Name() string { return "notify" }

// Publish sends the run summary under the event matching the run status.
func (r *RunNotifier) Publish(ctx context.Context, snap domain.Snapshot) error {
	m := snap.Manifest
	event := RunEvent(m.Status)
	return r.notifier.Notify(ctx, event, RunTitle(m), RunSummary(m))
}

// RunEvent maps a run status to its notification event. Interrupted runs
// count as failures.
func RunEvent(s domain.RunStatus) string {
	switch s {
	case domain.RunStatusCompleted, domain.RunStatusDryRun:
		return EventRunCompleted
	default:
		return EventRunFailed
	}
}

func RunTitle(m domain.RunManifest) string {
	return fmt.Sprintf("pmuniverse %s %s", m.Date, m.Status)
}

// RunSummary renders the manifest counters, one per line.
func RunSummary(m domain.RunManifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", m.RunID)
	fmt.Fprintf(&b, "markets: %d (with tokens %d)\n", m.MarketsTotal, m.MarketsWithTokens)
	fmt.Fprintf(&b, "tokens: %d ok / %d missing / %d api errors of %d\n",
		m.TokensPricedOK, m.TokensMissingPrice, m.APIErrors, m.TokensTotal)
	fmt.Fprintf(&b, "batches: %d\n", m.PriceBatches)
	fmt.Fprintf(&b, "duration: %.1fs", m.DurationSeconds)
	if m.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", m.Error)
	}
	return b.String()
}

var _ domain.Publisher = (*RunNotifier)(nil)
