// Package importer drives publisher feed imports: fetch, parse, chunked
// assembly and reconciliation, persistence, cleanup and the import audit
// record.
package importer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/cleanup"
	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/moderation"
	"github.com/sells-group/mission-sync/internal/reconcile"
	"github.com/sells-group/mission-sync/internal/writer"
)

// ErrEmptyFeed is returned for a feed that parsed to zero records.
var ErrEmptyFeed = eris.New("importer: empty feed")

// Fetcher downloads a raw feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Parser decodes a raw feed into untyped records.
type Parser interface {
	Parse(ctx context.Context, data []byte) ([]model.RawRecord, error)
}

// Geocoder resolves coordinates for addresses that lack them.
type Geocoder interface {
	Enrich(ctx context.Context, publisher model.Publisher, missions []*model.NormalizedMission) ([]model.GeolocResult, error)
}

// Verifier cross-checks organizations against a legal registry, in place.
type Verifier interface {
	Verify(ctx context.Context, missions []*model.NormalizedMission)
}

// Store is the persistence surface of a run.
type Store interface {
	writer.Store
	cleanup.Store
	ListPublishers(ctx context.Context, publisherID string) ([]model.Publisher, error)
	FindMissions(ctx context.Context, publisherID string, clientIDs []string) (map[string]*model.Mission, error)
	AcquireLease(ctx context.Context, publisherID, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, publisherID, holder string) error
}

// ImportLog records the lifecycle of import runs.
type ImportLog interface {
	cleanup.ImportLog
	Start(ctx context.Context, publisherID string, at time.Time) (*model.Import, error)
	Finish(ctx context.Context, imp *model.Import) error
}

// Options tunes a run.
type Options struct {
	ChunkSize     int
	Concurrency   int
	LeaseTTL      time.Duration
	CleanupWindow time.Duration
	// Holder identifies this process in the run lease.
	Holder string
	Writer writer.Options
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 2 * time.Hour
	}
	if o.CleanupWindow <= 0 {
		o.CleanupWindow = cleanup.DefaultWindow
	}
	if o.Holder == "" {
		host, _ := os.Hostname()
		o.Holder = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return o
}

// PolicySource resolves the moderation policy of a publisher.
// *moderation.PolicySet implements it.
type PolicySource interface {
	Lookup(publisherID string) moderation.Policy
}

// Deps are the collaborators of an Orchestrator. Geocoder, Verifier, Policies
// and Metrics are optional.
type Deps struct {
	Store    Store
	Imports  ImportLog
	Fetcher  Fetcher
	Parser   Parser
	Geocoder Geocoder
	Verifier Verifier
	Policies PolicySource
	Metrics  *Metrics
}

// Orchestrator runs imports for one or all publishers.
type Orchestrator struct {
	deps    Deps
	opts    Options
	engine  *reconcile.Engine
	sweeper *cleanup.Sweeper
	now     func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		engine:  reconcile.NewEngine(),
		sweeper: cleanup.New(deps.Store, deps.Imports, opts.CleanupWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PublisherResult is the outcome of one publisher run.
type PublisherResult struct {
	PublisherID string             `json:"publisher_id"`
	Name        string             `json:"name"`
	ImportID    string             `json:"import_id,omitempty"`
	Status      model.ImportStatus `json:"status"`
	Counts      model.ImportCounts `json:"counts"`
	Error       string             `json:"error,omitempty"`
	Duration    time.Duration      `json:"duration"`
}

// RunResult aggregates the publisher runs of one invocation.
type RunResult struct {
	Success    bool              `json:"success"`
	Publishers []PublisherResult `json:"publishers"`
	Message    string            `json:"message"`
}

// Run imports publisherID, or every active publisher when it is empty.
// Publishers run sequentially; a failing publisher does not stop the others.
// The error is only set when publishers cannot be listed.
func (o *Orchestrator) Run(ctx context.Context, publisherID string) (*RunResult, error) {
	publishers, err := o.deps.Store.ListPublishers(ctx, publisherID)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list publishers")
	}
	if publisherID != "" && len(publishers) == 0 {
		return nil, eris.Errorf("importer: publisher %q not found", publisherID)
	}

	zap.L().Info("import started", zap.String("component", "importer"), zap.Int("publishers", len(publishers)))

	res := &RunResult{Success: true, Publishers: make([]PublisherResult, 0, len(publishers))}
	failed := 0
	for _, p := range publishers {
		pr := o.runPublisher(ctx, p)
		if pr.Status != model.ImportSuccess {
			res.Success = false
			failed++
		}
		res.Publishers = append(res.Publishers, pr)
	}
	res.Message = fmt.Sprintf("%d publisher(s) imported, %d failed", len(publishers)-failed, failed)

	zap.L().Info("import finished",
		zap.String("component", "importer"),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
	)
	return res, nil
}
