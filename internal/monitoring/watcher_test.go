package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/config"
	"github.com/sells-group/mission-sync/internal/model"
)

// webhook counts alerts and answers with the status held in fail.
type webhook struct {
	*httptest.Server
	received atomic.Int32
	fail     atomic.Bool
}

func newWebhook(t *testing.T) *webhook {
	t.Helper()
	wh := &webhook{}
	wh.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if wh.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		wh.received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(wh.Close)
	return wh
}

func failedImport(id, publisherID string, age time.Duration) model.Import {
	return model.Import{ID: id, PublisherID: publisherID, Status: model.ImportFailed, StartedAt: time.Now().UTC().Add(-age)}
}

func newTestWatcher(st *mockImports, url string) *Watcher {
	cfg := config.MonitoringConfig{WebhookURL: url, LookbackWindowHours: 24, FailureRateThreshold: 0.5}
	return NewWatcher(NewCollector(st), NewAlerter(cfg), cfg)
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w := NewWatcher(NewCollector(&mockImports{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher.Run did not stop after context cancellation")
	}
}

func TestWatcher_CancelledBeforeStart(t *testing.T) {
	st := &mockImports{}
	w := NewWatcher(NewCollector(st), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Equal(t, 0, st.calls)
}

func TestWatcher_ChecksOnStart(t *testing.T) {
	wh := newWebhook(t)
	st := &mockImports{imports: []model.Import{failedImport("1", "pub-a", time.Hour)}}
	w := newTestWatcher(st, wh.URL)
	w.cfg.CheckIntervalSecs = 3600

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return wh.received.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestWatcher_PersistentAlertSentOnce(t *testing.T) {
	wh := newWebhook(t)
	st := &mockImports{imports: []model.Import{failedImport("1", "pub-a", time.Hour)}}
	w := newTestWatcher(st, wh.URL)
	ctx := context.Background()

	assert.Equal(t, 1, w.tick(ctx, zap.NewNop()))
	assert.Equal(t, 0, w.tick(ctx, zap.NewNop()))
	assert.Equal(t, int32(1), wh.received.Load())

	// Another publisher failing changes the alert.
	st.imports = append([]model.Import{failedImport("2", "pub-b", time.Minute)}, st.imports...)
	assert.Equal(t, 1, w.tick(ctx, zap.NewNop()))
	assert.Equal(t, int32(2), wh.received.Load())
	assert.Equal(t, "publisher_failing:pub-a,pub-b", w.active[AlertPublisherFailing])
}

func TestWatcher_ResolvedAlertIsRaisedAgain(t *testing.T) {
	wh := newWebhook(t)
	st := &mockImports{imports: []model.Import{failedImport("1", "pub-a", time.Hour)}}
	w := newTestWatcher(st, wh.URL)
	ctx := context.Background()

	require.Equal(t, 1, w.tick(ctx, zap.NewNop()))

	st.imports = append([]model.Import{{ID: "2", PublisherID: "pub-a", Status: model.ImportSuccess, StartedAt: time.Now().UTC()}}, st.imports...)
	assert.Equal(t, 0, w.tick(ctx, zap.NewNop()))
	assert.Empty(t, w.active)

	st.imports = append([]model.Import{failedImport("3", "pub-a", 0)}, st.imports...)
	assert.Equal(t, 1, w.tick(ctx, zap.NewNop()))
	assert.Equal(t, int32(2), wh.received.Load())
}

func TestWatcher_FailedDeliveryRetried(t *testing.T) {
	wh := newWebhook(t)
	wh.fail.Store(true)
	st := &mockImports{imports: []model.Import{failedImport("1", "pub-a", time.Hour)}}
	w := newTestWatcher(st, wh.URL)
	ctx := context.Background()

	assert.Equal(t, 0, w.tick(ctx, zap.NewNop()))
	assert.Empty(t, w.active)

	wh.fail.Store(false)
	assert.Equal(t, 1, w.tick(ctx, zap.NewNop()))
	assert.Equal(t, int32(1), wh.received.Load())
}

func TestWatcher_CollectError(t *testing.T) {
	st := &mockImports{err: errors.New("db down")}
	w := newTestWatcher(st, "")

	assert.Equal(t, 0, w.tick(context.Background(), zap.NewNop()))
	assert.Equal(t, 1, st.calls)
}
