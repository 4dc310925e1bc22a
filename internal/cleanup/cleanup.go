// Package cleanup soft-deletes missions that a publisher run did not see.
package cleanup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/db"
	"github.com/sells-group/mission-sync/internal/model"
)

// DefaultWindow is how recent a successful import must be to block the
// sweep after an empty feed.
const DefaultWindow = 7 * 24 * time.Hour

const deleteBatchSize = 5000

// Store is the persistence surface the sweeper needs. SoftDeleteMissions
// must commit the deletions and their events together.
type Store interface {
	StaleMissions(ctx context.Context, publisherID string, before time.Time) ([]string, error)
	SoftDeleteMissions(ctx context.Context, ids []string, at time.Time, events []model.MissionEvent) error
}

// ImportLog answers when a publisher last imported successfully.
type ImportLog interface {
	LastSuccess(ctx context.Context, publisherID string) (*model.Import, error)
}

// Sweeper removes stale missions of one publisher.
type Sweeper struct {
	store   Store
	imports ImportLog
	window  time.Duration
	batch   int
	now     func() time.Time
	newID   func() string
}

// New creates a Sweeper. A non-positive window means DefaultWindow.
func New(store Store, imports ImportLog, window time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sweeper{
		store:   store,
		imports: imports,
		window:  window,
		batch:   deleteBatchSize,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Sweep soft-deletes every live mission of the publisher whose watermark is
// missing or older than runStart, and writes one delete event per mission in
// the same transaction as its deletion. It returns the number of missions
// deleted, including those of batches committed before an error.
func (s *Sweeper) Sweep(ctx context.Context, publisherID string, runStart time.Time) (int, error) {
	log := zap.L().With(zap.String("component", "cleanup"), zap.String("publisher", publisherID))

	ids, err := s.store.StaleMissions(ctx, publisherID, runStart)
	if err != nil {
		return 0, eris.Wrapf(err, "cleanup: find stale missions of %s", publisherID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	at := s.now()
	deleted := 0
	for _, batch := range db.Batches(ids, s.batch) {
		events := make([]model.MissionEvent, 0, len(batch))
		for _, id := range batch {
			events = append(events, model.MissionEvent{
				ID:        s.newID(),
				MissionID: id,
				Type:      model.EventDelete,
				Changes:   model.Changes{"deletedAt": {Previous: nil, Current: at}},
				CreatedAt: at,
			})
		}
		if err := s.store.SoftDeleteMissions(ctx, batch, at, events); err != nil {
			return deleted, eris.Wrapf(err, "cleanup: soft delete %d missions of %s", len(batch), publisherID)
		}
		deleted += len(batch)
	}

	log.Info("stale missions soft-deleted", zap.Int("count", deleted))
	return deleted, nil
}

// SweepAfterEmptyFeed sweeps only when the publisher has no successful
// import inside the window preceding runStart. swept reports whether the
// sweep ran.
func (s *Sweeper) SweepAfterEmptyFeed(ctx context.Context, publisherID string, runStart time.Time) (deleted int, swept bool, err error) {
	last, err := s.imports.LastSuccess(ctx, publisherID)
	if err != nil {
		return 0, false, eris.Wrapf(err, "cleanup: last success for %s", publisherID)
	}
	if last != nil && runStart.Sub(last.StartedAt) < s.window {
		zap.L().Info("recent successful import, skipping sweep after empty feed",
			zap.String("component", "cleanup"),
			zap.String("publisher", publisherID),
			zap.Time("last_success", last.StartedAt),
		)
		return 0, false, nil
	}

	deleted, err = s.Sweep(ctx, publisherID, runStart)
	return deleted, true, err
}
