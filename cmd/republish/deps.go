package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaiven11/artical-generate/internal/config"
	"github.com/kaiven11/artical-generate/internal/detector"
	"github.com/kaiven11/artical-generate/internal/identity"
	"github.com/kaiven11/artical-generate/internal/llm"
	"github.com/kaiven11/artical-generate/internal/orchestrator"
	"github.com/kaiven11/artical-generate/internal/prompt"
	"github.com/kaiven11/artical-generate/internal/publish"
	"github.com/kaiven11/artical-generate/internal/scraper"
	"github.com/kaiven11/artical-generate/internal/store"
	"github.com/kaiven11/artical-generate/internal/transport"
)

// deps holds every component wired together for the process/retry/templates
// commands, built once per invocation from the loaded Config.
type deps struct {
	cfg          *config.Config
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	identity     *identity.Controller
	broadcaster  *orchestrator.RedisProgressBroadcaster
}

// buildDeps wires Store, Identity Controller, LLM Client, Detector Driver,
// Scraper, Prompt Catalog, Publisher, and Orchestrator together, following
// the same "construct, then SetX/wire" shape as the teacher's runCrawl
// (cmd/webstalk/main.go).
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sharedTransport := transport.New()
	httpClient := &http.Client{Transport: sharedTransport, Timeout: 30 * time.Second}

	identityCtl := identity.New(identity.Config{
		BaseProfileDir:   cfg.Proxy.BaseProfileDir,
		RotationStrategy: identity.StrategyRoundRobin,
		ProxyURLs:        cfg.Proxy.URLs,
		ProxyRotation:    identity.RotationStrategy(cfg.Proxy.Rotation),
		EgressProbeURL:   cfg.Proxy.EgressProbeURL,
	}, httpClient, logger)

	llmClient := llm.New(llm.Config{
		EndpointURL:    cfg.LLM.EndpointURL,
		APIKey:         cfg.LLM.APIKey,
		DefaultModel:   cfg.LLM.DefaultModel,
		ConnectTimeout: 30 * time.Second, // §4.C: "connect 30s, read 60s, total 300s"
		ReadTimeout:    60 * time.Second,
		TotalTimeout:   300 * time.Second,
	}, &http.Client{Transport: sharedTransport}, logger)

	detectorDriver := detector.New(detector.Config{
		SiteURL:         cfg.Detector.SiteURL,
		Threshold:       cfg.AIDetection.Threshold,
		SubmitSelector:  cfg.Detector.SubmitSelector,
		SubmitXPath:     cfg.Detector.SubmitXPath,
		ResultSelector:  cfg.Detector.ResultSelector,
		ResultXPath:     cfg.Detector.ResultXPath,
		PollInterval:    5 * time.Second,
		PollBackoff:     1 * time.Second,
		MaxPollAttempts: cfg.Performance.AIDetectionTimeout,
		NavigateTimeout: cfg.DetectionTimeout(),
		CaptchaProvider: cfg.Detector.CaptchaProvider,
		CaptchaAPIKey:   cfg.Detector.CaptchaAPIKey,
	}, identityCtl, logger)

	webScraper := scraper.New(nil, logger)
	catalog := prompt.New(s, logger)
	publisher := publish.NewNoop(logger)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxAttempts = cfg.AIOptimization.MaxAttempts
	orchCfg.Threshold = cfg.AIDetection.Threshold
	orchCfg.RetryDelay = time.Duration(cfg.AIOptimization.RetryDelaySeconds) * time.Second

	var broadcaster *orchestrator.RedisProgressBroadcaster
	var progress orchestrator.ProgressBroadcaster
	if cfg.Store.Backend == "mongo" {
		// Redis progress mirroring is only meaningful alongside a durable
		// store; MemStore-backed runs (dev/test) skip it.
		if b, err := orchestrator.NewRedisProgressBroadcaster(orchestrator.RedisOptions{}, logger); err == nil {
			broadcaster = b
			progress = b
		} else {
			logger.Warn("redis progress broadcaster unavailable, continuing without it", "error", err)
		}
	}

	orch := orchestrator.New(s, webScraper, llmClient, detectorDriver, catalog, publisher, progress, orchCfg, logger)

	return &deps{
		cfg:          cfg,
		store:        s,
		orchestrator: orch,
		identity:     identityCtl,
		broadcaster:  broadcaster,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "mongo":
		return store.Open(ctx, cfg.Store.MongoURI, cfg.Store.Database, logger)
	default:
		return store.NewMemStore(), nil
	}
}

func (d *deps) Close(ctx context.Context) {
	if d.broadcaster != nil {
		_ = d.broadcaster.Close()
	}
	_ = d.store.Close(ctx)
}
