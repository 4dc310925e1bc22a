// Package writer applies reconciliation decisions to the store in bounded
// batches and records the audit trail.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/db"
	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/reconcile"
)

// Store is the persistence surface the writer needs.
type Store interface {
	UpsertOrganizations(ctx context.Context, publisherID string, orgs []*model.Organization, at time.Time) (map[string]string, error)
	ResolveDomain(ctx context.Context, name string) (string, error)
	ResolveActivity(ctx context.Context, name string) (string, error)
	InsertMissions(ctx context.Context, missions []*model.Mission) error
	UpdateMissions(ctx context.Context, missions []*model.Mission) error
	TouchMissions(ctx context.Context, ids []string, at time.Time) error
	InsertEvents(ctx context.Context, events []model.MissionEvent) error
}

// Options sizes the write batches.
type Options struct {
	CreateBatchSize int
	UpdateBatchSize int
	EventBatchSize  int
}

func (o Options) withDefaults() Options {
	if o.CreateBatchSize <= 0 {
		o.CreateBatchSize = 500
	}
	if o.UpdateBatchSize <= 0 {
		o.UpdateBatchSize = 50
	}
	if o.EventBatchSize <= 0 {
		o.EventBatchSize = 5000
	}
	return o
}

// Result summarizes one Write call.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Events    int
}

// Writer persists decisions. Reference-table lookups are cached for the
// lifetime of the writer, so use one writer per run.
type Writer struct {
	store Store
	opts  Options
	newID func() string

	mu         sync.Mutex
	domains    map[string]string
	activities map[string]string
}

// New creates a Writer.
func New(store Store, opts Options) *Writer {
	return &Writer{
		store:      store,
		opts:       opts.withDefaults(),
		newID:      uuid.NewString,
		domains:    make(map[string]string),
		activities: make(map[string]string),
	}
}

// Write applies one chunk of decisions: organizations first, then mission
// creates and updates, then the watermark touch of unchanged missions. The
// events of each committed batch are queued and written in batches of
// EventBatchSize. Every written mission is stamped with runStart. Batches
// committed before an error stay committed and their events are still
// written.
func (w *Writer) Write(ctx context.Context, publisherID string, decisions []reconcile.Decision, runStart time.Time) (Result, error) {
	log := zap.L().With(zap.String("component", "writer"), zap.String("publisher", publisherID))

	var res Result
	if len(decisions) == 0 {
		return res, nil
	}

	if err := w.linkOrganizations(ctx, publisherID, decisions, runStart); err != nil {
		return res, err
	}

	var (
		creates, updates []*model.Mission
		untouched        []string
	)
	for _, d := range decisions {
		m := d.Mission
		switch d.Action {
		case reconcile.Create, reconcile.Update:
			if err := w.resolveReferences(ctx, m); err != nil {
				return res, err
			}
			stamp(m, runStart, d.Action == reconcile.Create)
			if d.Action == reconcile.Create {
				creates = append(creates, m)
			} else {
				updates = append(updates, m)
			}
		default:
			untouched = append(untouched, m.ID)
		}
	}

	byMission := make(map[string]reconcile.Decision, len(decisions))
	for _, d := range decisions {
		byMission[d.Mission.ID] = d
	}
	events := &eventQueue{store: w.store, size: w.opts.EventBatchSize}
	committed := func(batch []*model.Mission) error {
		for _, m := range batch {
			events.pending = append(events.pending, w.event(m.ID, byMission[m.ID], runStart))
		}
		return events.flushFull(ctx)
	}
	// fail still records the events of batches that committed before err.
	fail := func(err error) (Result, error) {
		if ferr := events.flush(context.WithoutCancel(ctx)); ferr != nil {
			log.Error("events of committed missions not written", zap.Error(ferr))
		}
		res.Events = events.written
		return res, err
	}

	for _, batch := range db.Batches(creates, w.opts.CreateBatchSize) {
		if err := w.store.InsertMissions(ctx, batch); err != nil {
			return fail(eris.Wrapf(err, "writer: insert %d missions", len(batch)))
		}
		res.Created += len(batch)
		if err := committed(batch); err != nil {
			return fail(err)
		}
	}
	for _, batch := range db.Batches(updates, w.opts.UpdateBatchSize) {
		if err := w.store.UpdateMissions(ctx, batch); err != nil {
			return fail(eris.Wrapf(err, "writer: update %d missions", len(batch)))
		}
		res.Updated += len(batch)
		if err := committed(batch); err != nil {
			return fail(err)
		}
	}
	if err := w.store.TouchMissions(ctx, untouched, runStart); err != nil {
		return fail(eris.Wrap(err, "writer: touch unchanged missions"))
	}
	res.Unchanged = len(untouched)

	if err := events.flush(ctx); err != nil {
		res.Events = events.written
		return res, err
	}
	res.Events = events.written

	log.Debug("chunk written",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("events", res.Events),
	)
	return res, nil
}

// linkOrganizations upserts the organizations carried by the decisions and
// sets OrganizationID on created and updated missions. The same organization
// commonly backs several missions; only its first payload is written.
func (w *Writer) linkOrganizations(ctx context.Context, publisherID string, decisions []reconcile.Decision, at time.Time) error {
	var orgs []*model.Organization
	seen := make(map[string]bool)
	for _, d := range decisions {
		org := d.Mission.Organization
		if org == nil || org.ClientID == "" || seen[org.ClientID] {
			continue
		}
		seen[org.ClientID] = true
		orgs = append(orgs, org)
	}
	if len(orgs) == 0 {
		return nil
	}

	ids, err := w.store.UpsertOrganizations(ctx, publisherID, orgs, at)
	if err != nil {
		return eris.Wrapf(err, "writer: upsert %d organizations", len(orgs))
	}
	for _, d := range decisions {
		org := d.Mission.Organization
		if org == nil || d.Action == reconcile.Noop {
			continue
		}
		if id, ok := ids[org.ClientID]; ok {
			d.Mission.OrganizationID = &id
		}
	}
	return nil
}

// resolveReferences fills DomainID and ActivityIDs from the names.
func (w *Writer) resolveReferences(ctx context.Context, m *model.Mission) error {
	if m.Domain != "" && m.DomainID == "" {
		id, err := w.cached(ctx, w.domains, m.Domain, w.store.ResolveDomain)
		if err != nil {
			return eris.Wrapf(err, "writer: resolve domain %q", m.Domain)
		}
		m.DomainID = id
	}
	if m.Domain == "" {
		m.DomainID = ""
	}

	var ids []string
	for _, name := range m.Activities {
		id, err := w.cached(ctx, w.activities, name, w.store.ResolveActivity)
		if err != nil {
			return eris.Wrapf(err, "writer: resolve activity %q", name)
		}
		ids = append(ids, id)
	}
	m.ActivityIDs = ids
	return nil
}

func (w *Writer) cached(ctx context.Context, cache map[string]string, name string, resolve func(context.Context, string) (string, error)) (string, error) {
	w.mu.Lock()
	id, ok := cache[name]
	w.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := resolve(ctx, name)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	cache[name] = id
	w.mu.Unlock()
	return id, nil
}

func stamp(m *model.Mission, runStart time.Time, created bool) {
	at := runStart
	m.LastSyncAt = &at
	m.UpdatedAt = runStart
	if created && m.CreatedAt.IsZero() {
		m.CreatedAt = runStart
	}
}

// eventQueue buffers the events of committed missions and writes them in
// batches of size.
type eventQueue struct {
	store   Store
	size    int
	pending []model.MissionEvent
	written int
}

// flushFull writes every complete batch and keeps the remainder queued.
func (q *eventQueue) flushFull(ctx context.Context) error {
	for len(q.pending) >= q.size {
		if err := q.write(ctx, q.pending[:q.size]); err != nil {
			return err
		}
		q.pending = q.pending[q.size:]
	}
	return nil
}

// flush writes everything queued.
func (q *eventQueue) flush(ctx context.Context) error {
	if err := q.flushFull(ctx); err != nil {
		return err
	}
	if len(q.pending) == 0 {
		return nil
	}
	if err := q.write(ctx, q.pending); err != nil {
		return err
	}
	q.pending = nil
	return nil
}

func (q *eventQueue) write(ctx context.Context, batch []model.MissionEvent) error {
	if err := q.store.InsertEvents(ctx, batch); err != nil {
		return eris.Wrapf(err, "writer: insert %d events", len(batch))
	}
	q.written += len(batch)
	return nil
}

func (w *Writer) event(missionID string, d reconcile.Decision, at time.Time) model.MissionEvent {
	e := model.MissionEvent{
		ID:        w.newID(),
		MissionID: missionID,
		Type:      d.EventType,
		CreatedAt: at,
	}
	if d.Action == reconcile.Update {
		e.Changes = d.Changes
	}
	return e
}
