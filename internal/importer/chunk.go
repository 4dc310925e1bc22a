package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mission-sync/internal/enrich"
	"github.com/sells-group/mission-sync/internal/mission"
	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/normalize"
	"github.com/sells-group/mission-sync/internal/reconcile"
	"github.com/sells-group/mission-sync/internal/writer"
)

// processChunk takes one slice of feed records through normalization,
// verification, assembly, geocoding, reconciliation and persistence. Record
// level failures are counted and skipped; an error means the chunk's writes
// did not complete.
func (o *Orchestrator) processChunk(ctx context.Context, run *publisherRun, w *writer.Writer, records []model.RawRecord) error {
	p := run.publisher

	normalized := o.normalizeAll(run, records)
	candidates := run.dedupe(normalized)
	if len(candidates) == 0 {
		return nil
	}

	clientIDs := make([]string, len(candidates))
	for i, n := range candidates {
		clientIDs[i] = n.ClientID
	}
	priors, err := o.deps.Store.FindMissions(ctx, p.ID, clientIDs)
	if err != nil {
		run.counts.Failed += len(candidates)
		return eris.Wrap(err, "importer: load prior missions")
	}

	if o.deps.Verifier != nil {
		o.deps.Verifier.Verify(ctx, candidates)
	}

	missions := o.assembleAll(run, candidates, priors)
	if len(missions) == 0 {
		return nil
	}

	var geoloc []model.GeolocResult
	if pending := enrich.PendingAddresses(missions); len(pending) > 0 && o.deps.Geocoder != nil {
		geoloc, err = o.deps.Geocoder.Enrich(ctx, p, pending)
		if err != nil {
			run.log.Warn("geocoding failed, addresses left pending", zap.Error(err))
		}
	}
	enrich.ApplyGeolocation(missions, geoloc)

	for _, m := range missions {
		if m.StatusCode == model.StatusRefused {
			run.counts.Refused++
		}
	}

	decisions := o.engine.Reconcile(missions, priors)
	res, err := w.Write(ctx, p.ID, decisions, run.start)
	run.counts.Created += res.Created
	run.counts.Updated += res.Updated
	o.deps.Metrics.observeMissions(reconcile.Create.String(), res.Created)
	o.deps.Metrics.observeMissions(reconcile.Update.String(), res.Updated)
	o.deps.Metrics.observeMissions(reconcile.Noop.String(), res.Unchanged)
	if err != nil {
		run.counts.Failed += len(missions) - res.Created - res.Updated
		return eris.Wrap(err, "importer: write chunk")
	}
	return nil
}

// normalizeAll decodes records with bounded parallelism, keeping feed order.
// Records that fail to decode are logged and dropped.
func (o *Orchestrator) normalizeAll(run *publisherRun, records []model.RawRecord) []*model.NormalizedMission {
	out := make([]*model.NormalizedMission, len(records))
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, raw := range records {
		g.Go(func() error {
			out[i], errs[i] = normalize.Normalize(raw)
			return nil
		})
	}
	_ = g.Wait()

	kept := out[:0]
	for i, n := range out {
		if errs[i] != nil || n == nil {
			run.counts.Failed++
			run.log.Warn("record skipped", zap.String("record", normalize.Describe(records[i])), zap.Error(errs[i]))
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

// dedupe drops records without a clientId, which cannot be keyed, and any
// clientId already seen in this run. The first occurrence wins.
func (r *publisherRun) dedupe(in []*model.NormalizedMission) []*model.NormalizedMission {
	out := make([]*model.NormalizedMission, 0, len(in))
	for _, n := range in {
		if n.ClientID == "" {
			r.counts.Refused++
			r.log.Warn("record without clientId refused", zap.String("title", n.Title))
			continue
		}
		if r.seen[n.ClientID] {
			r.log.Warn("duplicate clientId ignored", zap.String("client_id", n.ClientID))
			continue
		}
		r.seen[n.ClientID] = true
		out = append(out, n)
	}
	return out
}

// assembleAll builds candidates with bounded parallelism, keeping feed order.
func (o *Orchestrator) assembleAll(run *publisherRun, in []*model.NormalizedMission, priors map[string]*model.Mission) []*model.Mission {
	assembler := mission.Assembler{
		Publisher: run.publisher,
		Policy:    run.policy,
	}

	out := make([]*model.Mission, len(in))
	errs := make([]error, len(in))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, n := range in {
		prior := priors[n.ClientID]
		g.Go(func() error {
			out[i], errs[i] = assembler.Assemble(n, prior)
			return nil
		})
	}
	_ = g.Wait()

	kept := out[:0]
	for i, m := range out {
		if errs[i] != nil || m == nil {
			run.counts.Failed++
			run.log.Warn("mission assembly failed", zap.String("client_id", in[i].ClientID), zap.Error(errs[i]))
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
