package importer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mission-sync/internal/feed"
	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/moderation"
)

const oneMissionFeed = `<?xml version="1.0" encoding="UTF-8"?>
<source>
  <mission>
    <clientId>m-1</clientId>
    <title>Aide aux devoirs pour collégiens</title>
    <description>Accompagner des élèves de 6e dans leurs devoirs.</description>
    <applicationUrl>https://example.org/missions/m-1</applicationUrl>
    <domain>education</domain>
    <activities><value>Soutien scolaire</value></activities>
    <organizationName>Les Amis de l'École</organizationName>
    <organizationRNA>W751234567</organizationRNA>
    <addresses>
      <address><street>1 rue de la Paix</street><city>Lyon</city><postalCode>69001</postalCode></address>
    </addresses>
  </mission>
</source>`

type staticFetcher struct {
	data  []byte
	err   error
	calls int32
}

func (f *staticFetcher) Fetch(context.Context, string, map[string]string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.data, f.err
}

type countingGeocoder struct {
	calls int32
}

func (g *countingGeocoder) Enrich(_ context.Context, _ model.Publisher, missions []*model.NormalizedMission) ([]model.GeolocResult, error) {
	atomic.AddInt32(&g.calls, 1)
	var out []model.GeolocResult
	for _, m := range missions {
		for i := range m.Addresses {
			out = append(out, model.GeolocResult{
				ClientID:     m.ClientID,
				AddressIndex: i,
				Location:     &model.Location{Lat: 45.7676, Lon: 4.8345},
				Region:       "Auvergne-Rhône-Alpes",
				GeolocStatus: model.GeolocByAPI,
			})
		}
	}
	return out, nil
}

type panicParser struct{}

func (panicParser) Parse(context.Context, []byte) ([]model.RawRecord, error) {
	panic("boom")
}

var publisher = model.Publisher{ID: "pub-1", Name: "Alpha", FeedURL: "https://alpha.example/feed.xml", IsActive: true}

func newOrchestrator(st *memStore, fetcher Fetcher, deps Deps) *Orchestrator {
	deps.Store = st
	deps.Imports = st
	deps.Fetcher = fetcher
	if deps.Parser == nil {
		deps.Parser = feed.NewXMLParser()
	}
	o := New(deps, Options{Holder: "test"})
	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	var tick int64
	o.now = func() time.Time {
		n := atomic.AddInt64(&tick, 1)
		return start.Add(time.Duration(n) * time.Minute)
	}
	return o
}

func TestRun_OneMission(t *testing.T) {
	st := newMemStore(publisher)
	geo := &countingGeocoder{}
	reg := prometheus.NewRegistry()
	o := newOrchestrator(st, &staticFetcher{data: []byte(oneMissionFeed)}, Deps{Geocoder: geo, Metrics: NewMetrics(reg)})

	res, err := o.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Publishers, 1)

	pr := res.Publishers[0]
	assert.Equal(t, model.ImportSuccess, pr.Status)
	assert.Equal(t, model.ImportCounts{Received: 1, Created: 1}, pr.Counts)

	live := st.live("pub-1")
	require.Len(t, live, 1)
	m := live[0]
	assert.Equal(t, model.StatusAccepted, m.StatusCode)
	assert.Equal(t, "education", m.Domain)
	assert.NotEmpty(t, m.DomainID)
	require.NotNil(t, m.OrganizationID)
	assert.Equal(t, "W751234567", m.OrganizationClientID)
	require.Len(t, m.Addresses, 1)
	assert.Equal(t, model.GeolocByAPI, m.Addresses[0].GeolocStatus)
	assert.NotEmpty(t, m.Addresses[0].GeoPoint)

	creates := st.eventsOf(model.EventCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, m.ID, creates[0].MissionID)
	assert.Len(t, st.events, 1)

	require.Len(t, st.imports, 1)
	assert.Equal(t, model.ImportSuccess, st.imports[0].Status)
	assert.NotNil(t, st.imports[0].FinishedAt)
	assert.Empty(t, st.leases, "lease released")

	assert.Equal(t, 1.0, testutil.ToFloat64(o.deps.Metrics.Runs.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.deps.Metrics.Missions.WithLabelValues("create")))
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	st := newMemStore(publisher)
	geo := &countingGeocoder{}
	o := newOrchestrator(st, &staticFetcher{data: []byte(oneMissionFeed)}, Deps{Geocoder: geo})

	_, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	first := st.live("pub-1")[0]
	firstSync := *first.LastSyncAt

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	pr := res.Publishers[0]
	assert.Equal(t, model.ImportSuccess, pr.Status)
	assert.Zero(t, pr.Counts.Created)
	assert.Zero(t, pr.Counts.Updated)
	assert.Zero(t, pr.Counts.Deleted)

	assert.Len(t, st.events, 1, "no event for an unchanged mission")
	assert.Equal(t, int32(1), geo.calls, "geolocation carried forward")

	again := st.live("pub-1")
	require.Len(t, again, 1)
	assert.Equal(t, first.ID, again[0].ID)
	assert.True(t, again[0].LastSyncAt.After(firstSync), "watermark advanced")
}

func TestRun_EmptyFeedSweepsWithoutRecentSuccess(t *testing.T) {
	st := newMemStore(publisher)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		st.missions[id] = &model.Mission{ID: id, PublisherID: "pub-1", ClientID: "c-" + id, LastSyncAt: &old}
	}
	o := newOrchestrator(st, &staticFetcher{data: []byte(`<missions></missions>`)}, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.False(t, res.Success)

	pr := res.Publishers[0]
	assert.Equal(t, model.ImportFailed, pr.Status)
	assert.Equal(t, "empty feed", pr.Error)
	assert.Equal(t, 2, pr.Counts.Deleted)
	assert.Empty(t, st.live("pub-1"))
	assert.Len(t, st.eventsOf(model.EventDelete), 2)
	assert.Equal(t, "empty feed", st.imports[0].Error)
}

func TestRun_EmptyFeedKeepsMissionsAfterRecentSuccess(t *testing.T) {
	st := newMemStore(publisher)
	old := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	st.missions["a"] = &model.Mission{ID: "a", PublisherID: "pub-1", ClientID: "c-a", LastSyncAt: &old}
	st.imports = append(st.imports, &model.Import{ID: "imp-0", PublisherID: "pub-1", Status: model.ImportSuccess, StartedAt: old})
	o := newOrchestrator(st, &staticFetcher{data: []byte(`<missions></missions>`)}, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.Equal(t, model.ImportFailed, res.Publishers[0].Status)
	assert.Len(t, st.live("pub-1"), 1)
	assert.Empty(t, st.events)
}

func TestRun_FetchErrorTouchesNothing(t *testing.T) {
	st := newMemStore(publisher)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.missions["a"] = &model.Mission{ID: "a", PublisherID: "pub-1", ClientID: "c-a", LastSyncAt: &old}
	fetchErr := &feed.FetchError{URL: publisher.FeedURL, StatusCode: 503, Err: errors.New("service unavailable")}
	o := newOrchestrator(st, &staticFetcher{err: fetchErr}, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	pr := res.Publishers[0]
	assert.Equal(t, model.ImportFailed, pr.Status)
	assert.Contains(t, pr.Error, "importer: fetch feed")
	assert.Len(t, st.live("pub-1"), 1)
	assert.Empty(t, st.events)
}

func TestRun_FailedChunkSkipsCleanup(t *testing.T) {
	st := newMemStore(publisher)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.missions["stale"] = &model.Mission{ID: "stale", PublisherID: "pub-1", ClientID: "c-stale", LastSyncAt: &old}
	st.failInsert = errors.New("connection reset")
	o := newOrchestrator(st, &staticFetcher{data: []byte(oneMissionFeed)}, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	pr := res.Publishers[0]
	assert.Equal(t, model.ImportFailed, pr.Status)
	assert.Equal(t, "1 chunk(s) failed", pr.Error)
	assert.Equal(t, 1, pr.Counts.Failed)
	assert.Nil(t, st.missions["stale"].DeletedAt, "cleanup skipped")
}

func TestRun_PanicIsContained(t *testing.T) {
	other := model.Publisher{ID: "pub-2", Name: "Beta", FeedURL: "https://beta.example", IsActive: true}
	st := newMemStore(publisher, other)
	o := newOrchestrator(st, &staticFetcher{data: []byte("x")}, Deps{Parser: panicParser{}})

	res, err := o.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Publishers, 2)
	for _, pr := range res.Publishers {
		assert.Equal(t, model.ImportFailed, pr.Status)
		assert.Contains(t, pr.Error, "panic: boom")
	}
	assert.Equal(t, "0 publisher(s) imported, 2 failed", res.Message)
	assert.Empty(t, st.leases)
}

func TestRun_LeaseHeld(t *testing.T) {
	st := newMemStore(publisher)
	st.leases["pub-1"] = "other-host"
	fetcher := &staticFetcher{data: []byte(oneMissionFeed)}
	o := newOrchestrator(st, fetcher, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	pr := res.Publishers[0]
	assert.Equal(t, model.ImportFailed, pr.Status)
	assert.Equal(t, "import already running", pr.Error)
	assert.Zero(t, fetcher.calls)
	assert.Empty(t, st.imports)
	assert.Equal(t, "other-host", st.leases["pub-1"])
}

func TestRun_UnknownPublisher(t *testing.T) {
	st := newMemStore(publisher)
	o := newOrchestrator(st, &staticFetcher{}, Deps{})

	_, err := o.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `publisher "nope" not found`)
}

func TestRun_DuplicateAndKeylessRecords(t *testing.T) {
	doc := `<missions>
  <mission><clientId>d-1</clientId><title>Premier titre valide</title><description>x</description><applicationUrl>https://a</applicationUrl><domain>sport</domain></mission>
  <mission><clientId>d-1</clientId><title>Second titre ignoré</title><description>x</description><applicationUrl>https://a</applicationUrl><domain>sport</domain></mission>
  <mission><title>Sans identifiant client</title></mission>
  <mission><clientId>d-2</clientId><title>Refusé</title></mission>
</missions>`
	st := newMemStore(publisher)
	o := newOrchestrator(st, &staticFetcher{data: []byte(doc)}, Deps{})

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	pr := res.Publishers[0]
	assert.Equal(t, model.ImportSuccess, pr.Status)
	assert.Equal(t, 4, pr.Counts.Received)
	assert.Equal(t, 2, pr.Counts.Created)
	assert.Equal(t, 2, pr.Counts.Refused)

	byClient := make(map[string]*model.Mission)
	for _, m := range st.live("pub-1") {
		byClient[m.ClientID] = m
	}
	require.Contains(t, byClient, "d-1")
	assert.Equal(t, "Premier titre valide", byClient["d-1"].Title)
	assert.Equal(t, model.StatusRefused, byClient["d-2"].StatusCode)
}

type countingPolicies struct {
	policy  moderation.Policy
	lookups int32
}

func (c *countingPolicies) Lookup(publisherID string) moderation.Policy {
	atomic.AddInt32(&c.lookups, 1)
	p := c.policy
	p.PublisherID = publisherID
	return p
}

func TestRun_PolicyResolvedOncePerRun(t *testing.T) {
	doc := `<missions>
  <mission><clientId>t-1</clientId></mission>
  <mission><clientId>t-2</clientId></mission>
  <mission><clientId>t-3</clientId></mission>
</missions>`
	st := newMemStore(publisher)
	policies := &countingPolicies{policy: moderation.Policy{Trusted: true}}
	o := newOrchestrator(st, &staticFetcher{data: []byte(doc)}, Deps{Policies: policies})
	o.opts.ChunkSize = 1

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Publishers[0].Counts.Created)
	assert.Equal(t, int32(1), atomic.LoadInt32(&policies.lookups))

	live := st.live("pub-1")
	require.Len(t, live, 3)
	for _, m := range live {
		assert.Equal(t, model.StatusAccepted, m.StatusCode, m.ClientID)
	}
}

func TestRun_ChunksInFeedOrder(t *testing.T) {
	doc := `<missions>
  <mission><clientId>k-1</clientId><title>Une mission</title></mission>
  <mission><clientId>k-2</clientId><title>Deux missions</title></mission>
  <mission><clientId>k-3</clientId><title>Trois missions</title></mission>
</missions>`
	st := newMemStore(publisher)
	o := newOrchestrator(st, &staticFetcher{data: []byte(doc)}, Deps{})
	o.opts.ChunkSize = 2

	res, err := o.Run(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Publishers[0].Counts.Created)
	require.Len(t, st.events, 3)
	var order []string
	for _, e := range st.events {
		order = append(order, st.missions[e.MissionID].ClientID)
	}
	assert.Equal(t, []string{"k-1", "k-2", "k-3"}, order)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 1000, o.ChunkSize)
	assert.Equal(t, 10, o.Concurrency)
	assert.Equal(t, 2*time.Hour, o.LeaseTTL)
	assert.Equal(t, 7*24*time.Hour, o.CleanupWindow)
	assert.NotEmpty(t, o.Holder)
}
