package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/config"
)

// Checker periodically samples dispatch health and pushes any triggered
// alerts to the configured webhook. Every pass also emits a flat
// telemetry event with the snapshot's headline numbers so an external
// observability system can scrape consensus quality without hitting the
// status endpoint.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	// consecutive Collect failures; escalates the log level after 3.
	collectFailures int
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.collectFailures++
		if c.collectFailures >= 3 {
			log.Error("monitoring: metrics collection failing repeatedly",
				zap.Int("consecutive_failures", c.collectFailures), zap.Error(err))
		} else {
			log.Warn("monitoring: failed to collect metrics", zap.Error(err))
		}
		return
	}
	c.collectFailures = 0

	log.Info("monitoring: dispatch health",
		zap.Int("cycles_total", snap.CyclesTotal),
		zap.Int("cycles_resolved", snap.CyclesResolved),
		zap.Int("cycles_no_consensus", snap.CyclesNoConsensus),
		zap.Float64("no_consensus_rate", snap.NoConsensusRate),
		zap.Float64("avg_confidence", snap.AvgConfidence),
		zap.Float64("avg_duration_ms", snap.AvgDurationMs),
		zap.Float64("avg_sources_hit", snap.AvgSourcesHit),
		zap.Int("sources_tracked", len(snap.Sources)),
	)
	if weakest, ok := weakestActiveSource(snap); ok {
		log.Debug("monitoring: least reliable active source",
			zap.String("source", weakest.SourceID),
			zap.Float64("reliability", weakest.Reliability),
		)
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alerts dispatched",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}

func weakestActiveSource(snap *MetricsSnapshot) (SourceHealth, bool) {
	var weakest SourceHealth
	found := false
	for _, src := range snap.Sources {
		if !src.Active {
			continue
		}
		if !found || src.Reliability < weakest.Reliability {
			weakest = src
			found = true
		}
	}
	return weakest, found
}
