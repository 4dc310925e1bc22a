package importer

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/moderation"
	"github.com/sells-group/mission-sync/internal/writer"
)

// State is a step of the per-publisher state machine.
type State string

const (
	StatePending         State = "PENDING"
	StateFetching        State = "FETCHING"
	StateParsing         State = "PARSING"
	StateChunkProcessing State = "CHUNK_PROCESSING"
	StateCleanup         State = "CLEANUP"
	StateStatsCompute    State = "STATS_COMPUTE"
	StateSuccess         State = "SUCCESS"
	StateFailed          State = "FAILED"
)

// publisherRun carries the mutable state of one publisher run.
type publisherRun struct {
	publisher model.Publisher
	start     time.Time
	state     State
	counts    model.ImportCounts
	log       *zap.Logger

	// policy is resolved once when the run starts.
	policy moderation.Policy

	// seen holds the clientIds already handled in earlier chunks.
	seen map[string]bool
}

func (r *publisherRun) transition(to State) {
	r.log.Info("state transition", zap.String("from", string(r.state)), zap.String("to", string(to)))
	r.state = to
}

func (o *Orchestrator) runPublisher(ctx context.Context, p model.Publisher) PublisherResult {
	run := &publisherRun{
		publisher: p,
		start:     o.now(),
		state:     StatePending,
		log:       zap.L().With(zap.String("component", "importer"), zap.String("publisher", p.ID)),
		seen:      make(map[string]bool),
	}
	if o.deps.Policies != nil {
		run.policy = o.deps.Policies.Lookup(p.ID)
	} else {
		run.policy = moderation.Policy{PublisherID: p.ID}
	}
	res := PublisherResult{PublisherID: p.ID, Name: p.Name, Status: model.ImportFailed}

	ok, err := o.deps.Store.AcquireLease(ctx, p.ID, o.opts.Holder, o.opts.LeaseTTL)
	if err != nil {
		res.Error = err.Error()
		run.log.Error("lease failed", zap.Error(err))
		o.deps.Metrics.observeRun(res.Status, 0)
		return res
	}
	if !ok {
		res.Error = "import already running"
		run.log.Warn("import already running, skipping")
		o.deps.Metrics.observeRun(res.Status, 0)
		return res
	}
	defer func() {
		if err := o.deps.Store.ReleaseLease(context.WithoutCancel(ctx), p.ID, o.opts.Holder); err != nil {
			run.log.Warn("release lease failed", zap.Error(err))
		}
	}()

	imp, err := o.deps.Imports.Start(ctx, p.ID, run.start)
	if err != nil {
		res.Error = err.Error()
		run.log.Error("start import record failed", zap.Error(err))
		o.deps.Metrics.observeRun(res.Status, 0)
		return res
	}
	res.ImportID = imp.ID

	runErr := o.safeExecute(ctx, run)

	finished := o.now()
	imp.FinishedAt = &finished
	imp.Counts = run.counts
	imp.Status = model.ImportSuccess
	if runErr != nil {
		imp.Status = model.ImportFailed
		imp.Error = runErr.Error()
		if errors.Is(runErr, ErrEmptyFeed) {
			imp.Error = "empty feed"
		}
		run.transition(StateFailed)
		run.log.Error("import failed", zap.Error(runErr))
	} else {
		run.transition(StateSuccess)
	}

	if err := o.deps.Imports.Finish(context.WithoutCancel(ctx), imp); err != nil {
		run.log.Error("finish import record failed", zap.Error(err))
	}

	res.Status = imp.Status
	res.Counts = imp.Counts
	res.Error = imp.Error
	res.Duration = finished.Sub(run.start)
	o.deps.Metrics.observeRun(res.Status, res.Duration)

	run.log.Info("publisher import done",
		zap.String("status", string(res.Status)),
		zap.Int("received", res.Counts.Received),
		zap.Int("created", res.Counts.Created),
		zap.Int("updated", res.Counts.Updated),
		zap.Int("deleted", res.Counts.Deleted),
		zap.Int("refused", res.Counts.Refused),
		zap.Int("failed", res.Counts.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// safeExecute turns a panic anywhere in the run into an error.
func (o *Orchestrator) safeExecute(ctx context.Context, run *publisherRun) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("importer: panic: %v", p)
		}
	}()
	return o.execute(ctx, run)
}

func (o *Orchestrator) execute(ctx context.Context, run *publisherRun) error {
	p := run.publisher

	run.transition(StateFetching)
	data, err := o.deps.Fetcher.Fetch(ctx, p.FeedURL, p.FeedHeaders())
	if err != nil {
		return eris.Wrap(err, "importer: fetch feed")
	}

	run.transition(StateParsing)
	records, parseErr := o.deps.Parser.Parse(ctx, data)
	if parseErr != nil || len(records) == 0 {
		deleted, swept, err := o.sweeper.SweepAfterEmptyFeed(ctx, p.ID, run.start)
		if err != nil {
			run.log.Error("cleanup after empty feed failed", zap.Error(err))
		}
		run.counts.Deleted = deleted
		run.log.Warn("feed has no records", zap.Bool("swept", swept), zap.Int("deleted", deleted), zap.Error(parseErr))
		if parseErr != nil {
			return eris.Wrap(parseErr, "importer: parse feed")
		}
		return ErrEmptyFeed
	}
	run.counts.Received = len(records)
	run.log.Info("feed parsed", zap.Int("records", len(records)))

	run.transition(StateChunkProcessing)
	w := writer.New(o.deps.Store, o.opts.Writer)
	chunks, failedChunks := 0, 0
	for start := 0; start < len(records); start += o.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "importer: cancelled")
		}
		end := min(start+o.opts.ChunkSize, len(records))
		chunks++
		if err := o.processChunk(ctx, run, w, records[start:end]); err != nil {
			failedChunks++
			run.log.Error("chunk failed", zap.Int("chunk", chunks), zap.Int("offset", start), zap.Error(err))
		}
	}
	if failedChunks > 0 {
		return eris.Errorf("%d chunk(s) failed", failedChunks)
	}

	run.transition(StateCleanup)
	deleted, err := o.sweeper.Sweep(ctx, p.ID, run.start)
	run.counts.Deleted = deleted
	if err != nil {
		return eris.Wrap(err, "importer: cleanup")
	}
	o.deps.Metrics.observeMissions("delete", deleted)

	run.transition(StateStatsCompute)
	run.log.Info("run stats",
		zap.Int("chunks", chunks),
		zap.Int("received", run.counts.Received),
		zap.Int("created", run.counts.Created),
		zap.Int("updated", run.counts.Updated),
		zap.Int("deleted", run.counts.Deleted),
	)
	return nil
}
