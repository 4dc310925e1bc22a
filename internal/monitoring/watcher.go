package monitoring

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/config"
)

const defaultWatchInterval = 5 * time.Minute

// Watcher polls the import log and raises alerts while import health is
// degraded. An alert is sent when it first appears or when its subject
// changes (another publisher starts failing); a condition that persists
// across ticks is not re-sent.
type Watcher struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	// active maps each raised alert type to the key it was last sent with.
	active map[AlertType]string
}

// NewWatcher creates an import health watcher.
func NewWatcher(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Watcher {
	return &Watcher{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]string),
	}
}

// Run checks import health right away, then on every interval. It blocks
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.watcher"))
	log.Info("watching import health",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", w.cfg.LookbackWindowHours),
	)

	if ctx.Err() == nil {
		w.tick(ctx, log)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("import health watcher stopped")
			return
		case <-ticker.C:
			w.tick(ctx, log)
		}
	}
}

// tick collects one snapshot and sends the alerts that are new or changed.
// It returns the number of alerts sent.
func (w *Watcher) tick(ctx context.Context, log *zap.Logger) int {
	snap, err := w.collector.Collect(ctx, w.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect import health", zap.Error(err))
		return 0
	}

	log.Debug("monitoring: import health",
		zap.Int("imports", snap.Total),
		zap.Int("failed", snap.Failed),
		zap.Int("running", snap.Running),
		zap.Int("empty_feeds", snap.EmptyFeeds),
		zap.Strings("failing_publishers", snap.FailingPublishers),
	)

	raised := make(map[AlertType]bool)
	sent := 0
	for _, alert := range w.alerter.Evaluate(snap) {
		raised[alert.Type] = true
		key := alertKey(alert, snap)
		if prev, ok := w.active[alert.Type]; ok && prev == key {
			continue
		}
		if w.alerter.SendAlerts(ctx, []Alert{alert}) == 0 {
			// Not recorded, so the next tick tries again.
			delete(w.active, alert.Type)
			continue
		}
		w.active[alert.Type] = key
		sent++
	}

	for typ := range w.active {
		if !raised[typ] {
			log.Info("monitoring: alert resolved", zap.String("type", string(typ)))
			delete(w.active, typ)
		}
	}

	if sent > 0 {
		log.Info("monitoring: alerts sent", zap.Int("sent", sent), zap.Int("active", len(w.active)))
	}
	return sent
}

// alertKey identifies what an alert is about. Rates and ages move on every
// tick and are left out.
func alertKey(alert Alert, snap *Snapshot) string {
	if alert.Type != AlertPublisherFailing {
		return string(alert.Type)
	}
	pubs := slices.Clone(snap.FailingPublishers)
	slices.Sort(pubs)
	return string(alert.Type) + ":" + strings.Join(pubs, ",")
}
