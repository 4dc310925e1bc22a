package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertImportFailureRate AlertType = "import_failure_rate"
	AlertPublisherFailing  AlertType = "publisher_failing"
	AlertImportStuck       AlertType = "import_stuck"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	// Check import failure rate.
	finished := snap.Success + snap.Failed
	if finished >= 5 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertImportFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Import failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
				"empty_feeds":  snap.EmptyFeeds,
			},
			Timestamp: now,
		})
	}

	// Check publishers whose latest run failed.
	if len(snap.FailingPublishers) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertPublisherFailing,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d publisher(s) failed their latest import: %s",
				len(snap.FailingPublishers), strings.Join(snap.FailingPublishers, ", "),
			),
			Details: map[string]any{
				"publishers": snap.FailingPublishers,
			},
			Timestamp: now,
		})
	}

	// Check imports that never finished.
	if a.cfg.StuckAfterMinutes > 0 && snap.OldestRunning != nil {
		age := now.Sub(*snap.OldestRunning)
		if age > time.Duration(a.cfg.StuckAfterMinutes)*time.Minute {
			alerts = append(alerts, Alert{
				Type:     AlertImportStuck,
				Severity: "high",
				Message: fmt.Sprintf(
					"%d import(s) running, oldest started %s ago",
					snap.Running, age.Round(time.Minute),
				),
				Details: map[string]any{
					"running":     snap.Running,
					"age_minutes": int(age.Minutes()),
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
