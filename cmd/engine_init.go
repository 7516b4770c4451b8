package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/adapter"
	"github.com/collectscope/identify-cli/internal/cache"
	"github.com/collectscope/identify-cli/internal/consensus"
	"github.com/collectscope/identify-cli/internal/dispatch"
	"github.com/collectscope/identify-cli/internal/engine"
	"github.com/collectscope/identify-cli/internal/feedback"
	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/monitoring"
	"github.com/collectscope/identify-cli/internal/normalize"
	"github.com/collectscope/identify-cli/internal/registry"
	"github.com/collectscope/identify-cli/internal/resilience"
	"github.com/collectscope/identify-cli/internal/store"
	"github.com/collectscope/identify-cli/pkg/auctions"
	"github.com/collectscope/identify-cli/pkg/grading"
	"github.com/collectscope/identify-cli/pkg/vision"
)

// engineEnv holds the initialized store, registry and engine needed by the
// identify/serve/status commands.
type engineEnv struct {
	Store     store.Store
	Registry  *registry.Registry
	Engine    *engine.Engine
	Collector *monitoring.Collector
	Alerter   *monitoring.Alerter
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "identify.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// sourceDef pairs a source's catalog entry with its adapter.
type sourceDef struct {
	source  model.Source
	adapter adapter.SourceAdapter
}

// buildSourceDefs constructs one adapter per configured upstream API. A
// source whose API key is absent is simply not registered.
func buildSourceDefs() []sourceDef {
	var defs []sourceDef

	if cfg.Vision.Key != "" {
		client := vision.NewClient(cfg.Vision.Key, vision.WithModel(cfg.Vision.Model))
		defs = append(defs, sourceDef{
			source: model.Source{
				ID:          "vision-claude",
				Name:        "Claude Vision",
				Categories:  []model.Category{model.CategoryCoins, model.CategoryBanknotes, model.CategoryBullion},
				Tier:        1,
				Reliability: 0.5,
				Active:      true,
			},
			adapter: adapter.NewVisionAdapter("vision-claude", client),
		})
	} else {
		zap.L().Warn("IDENTIFY_VISION_KEY not set, vision source disabled")
	}

	if cfg.Auctions.Key != "" {
		opts := []auctions.Option{auctions.WithRateLimit(cfg.Auctions.RequestsPerSec)}
		if cfg.Auctions.BaseURL != "" {
			opts = append(opts, auctions.WithBaseURL(cfg.Auctions.BaseURL))
		}
		client := auctions.NewClient(cfg.Auctions.Key, opts...)
		defs = append(defs, sourceDef{
			source: model.Source{
				ID:          "auction-archive",
				Name:        "Auction Archive",
				Categories:  []model.Category{model.CategoryCoins, model.CategoryBanknotes, model.CategoryBullion},
				Tier:        2,
				Reliability: 0.5,
				Active:      true,
			},
			adapter: adapter.NewAuctionAdapter("auction-archive", client),
		})
	} else {
		zap.L().Debug("IDENTIFY_AUCTIONS_KEY not set, auction source disabled")
	}

	if cfg.Grading.Key != "" {
		opts := []grading.Option{grading.WithRateLimit(cfg.Grading.RequestsPerSec)}
		if cfg.Grading.BaseURL != "" {
			opts = append(opts, grading.WithBaseURL(cfg.Grading.BaseURL))
		}
		client := grading.NewClient(cfg.Grading.Key, opts...)
		defs = append(defs, sourceDef{
			source: model.Source{
				ID:          "grading-certs",
				Name:        "Grading Certification Lookup",
				Categories:  []model.Category{model.CategoryCoins},
				Tier:        2,
				Reliability: 0.5,
				Active:      true,
			},
			adapter: adapter.NewGradingAdapter("grading-certs", client),
		})
	} else {
		zap.L().Debug("IDENTIFY_GRADING_KEY not set, grading source disabled")
	}

	return defs
}

// loadRegistry registers every configured source, preferring the persisted
// catalog row when one exists so accumulated trust statistics survive
// restarts. New sources are written back to the store.
func loadRegistry(ctx context.Context, st store.Store, defs []sourceDef) (*registry.Registry, error) {
	reg := registry.New(cfg.Engine.ReliabilityAlpha)

	persisted := map[string]model.Source{}
	if st != nil {
		rows, err := st.ListSources(ctx, false)
		if err != nil {
			return nil, eris.Wrap(err, "list persisted sources")
		}
		for _, row := range rows {
			persisted[row.ID] = row
		}
	}

	for _, def := range defs {
		src := def.source
		if row, ok := persisted[src.ID]; ok {
			src.Reliability = row.Reliability
			src.AvgLatencyMs = row.AvgLatencyMs
			src.Active = row.Active
			src.CreatedAt = row.CreatedAt
		} else if st != nil {
			if err := st.UpsertSource(ctx, src); err != nil {
				return nil, eris.Wrapf(err, "persist source %s", src.ID)
			}
		}
		if err := reg.Register(src, def.adapter); err != nil {
			return nil, err
		}
	}

	zap.L().Info("source registry loaded",
		zap.Int("sources", len(defs)),
		zap.Int("persisted", len(persisted)),
	)
	return reg, nil
}

// initEngine sets up the store, source registry, resilience stack and the
// identification engine. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := loadRegistry(ctx, st, buildSourceDefs())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sel := registry.NewSelector(reg, map[model.Depth]int{
		model.DepthBasic:         cfg.Engine.BasicCeiling,
		model.DepthComprehensive: cfg.Engine.ComprehensiveCeiling,
		model.DepthDeep:          cfg.Engine.DeepCeiling,
	})

	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)
	breakers := resilience.NewSourceBreakers(resilience.FromCircuitConfig(
		cfg.Breaker.FailureThreshold,
		cfg.Breaker.CooldownSecs,
		cfg.Breaker.HalfOpenMax,
	))
	caller := adapter.NewCaller(retryCfg, breakers,
		time.Duration(cfg.Engine.PerCallTimeoutSecs)*time.Second)

	orch := dispatch.New(caller, dispatch.Options{
		GlobalTimeout:  time.Duration(cfg.Engine.GlobalTimeoutSecs) * time.Second,
		Grace:          time.Duration(cfg.Engine.GraceMs) * time.Millisecond,
		ConcurrencyCap: cfg.Engine.ConcurrencyCap,
	})

	tuning := consensus.DefaultTuning()
	if cfg.Consensus.TuningPath != "" {
		tuning, err = consensus.LoadTuning(cfg.Consensus.TuningPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load consensus tuning")
		}
		zap.L().Info("consensus tuning loaded", zap.String("path", cfg.Consensus.TuningPath))
	}

	var resultCache *cache.Cache
	if cfg.Cache.Enabled {
		resultCache = cache.New(time.Duration(cfg.Cache.TTLHours)*time.Hour)
	}

	eng := engine.New(
		reg,
		sel,
		orch,
		normalize.New(),
		consensus.New(tuning),
		resultCache,
		feedback.NewRecorder(reg, st),
	)

	return &engineEnv{
		Store:     st,
		Registry:  reg,
		Engine:    eng,
		Collector: monitoring.NewCollector(st, reg),
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
	}, nil
}
