package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/model"
)

// collectLimit bounds how many import records one snapshot reads.
const collectLimit = 10000

// Snapshot holds a point-in-time view of import health.
type Snapshot struct {
	// Import runs started within the lookback window.
	Total    int     `json:"total"`
	Success  int     `json:"success"`
	Failed   int     `json:"failed"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`

	// EmptyFeeds counts failed runs whose feed had no records.
	EmptyFeeds int `json:"empty_feeds"`

	// Counts sums the mission statistics of every run in the window.
	Counts model.ImportCounts `json:"counts"`

	// FailingPublishers lists publishers whose latest run failed.
	FailingPublishers []string `json:"failing_publishers,omitempty"`

	// OldestRunning is the start of the longest-running import, if any.
	OldestRunning *time.Time `json:"oldest_running,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ImportLister reads import records, most recent first.
type ImportLister interface {
	List(ctx context.Context, publisherID string, limit int) ([]model.Import, error)
}

// Collector builds snapshots from the import log.
type Collector struct {
	imports ImportLister
	now     func() time.Time
}

// NewCollector creates a new import health collector.
func NewCollector(imports ImportLister) *Collector {
	return &Collector{imports: imports, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	imports, err := c.imports.List(ctx, "", collectLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list imports")
	}

	latest := make(map[string]bool)
	for _, imp := range imports {
		if imp.StartedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch imp.Status {
		case model.ImportSuccess:
			snap.Success++
		case model.ImportFailed:
			snap.Failed++
			if imp.Error == "empty feed" {
				snap.EmptyFeeds++
			}
		case model.ImportRunning:
			snap.Running++
			if snap.OldestRunning == nil || imp.StartedAt.Before(*snap.OldestRunning) {
				started := imp.StartedAt
				snap.OldestRunning = &started
			}
		}

		snap.Counts.Received += imp.Counts.Received
		snap.Counts.Created += imp.Counts.Created
		snap.Counts.Updated += imp.Counts.Updated
		snap.Counts.Deleted += imp.Counts.Deleted
		snap.Counts.Refused += imp.Counts.Refused
		snap.Counts.Failed += imp.Counts.Failed

		// Records arrive newest first, so the first finished run seen for a
		// publisher is its latest.
		if imp.Status == model.ImportRunning || latest[imp.PublisherID] {
			continue
		}
		latest[imp.PublisherID] = true
		if imp.Status == model.ImportFailed {
			snap.FailingPublishers = append(snap.FailingPublishers, imp.PublisherID)
		}
	}

	if finished := snap.Success + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
