package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertNoConsensusRate   AlertType = "no_consensus_rate"
	AlertSourceReliability AlertType = "source_reliability"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// A few quiet cycles with no consensus are expected noise;
	// alert only once the window has enough data.
	if snap.CyclesTotal >= 5 && snap.NoConsensusRate > a.cfg.NoConsensusRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNoConsensusRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"No-consensus rate %.1f%% exceeds threshold %.1f%% (%d of %d cycles in last %dh)",
				snap.NoConsensusRate*100, a.cfg.NoConsensusRateThreshold*100,
				snap.CyclesNoConsensus, snap.CyclesTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"no_consensus_rate": snap.NoConsensusRate,
				"threshold":         a.cfg.NoConsensusRateThreshold,
				"no_consensus":      snap.CyclesNoConsensus,
				"total":             snap.CyclesTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ReliabilityFloor > 0 {
		for _, src := range snap.Sources {
			if !src.Active || src.Reliability >= a.cfg.ReliabilityFloor {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertSourceReliability,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Source %s reliability %.2f fell below floor %.2f",
					src.SourceID, src.Reliability, a.cfg.ReliabilityFloor,
				),
				Details: map[string]any{
					"source":      src.SourceID,
					"reliability": src.Reliability,
					"floor":       a.cfg.ReliabilityFloor,
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
