package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/config"
	"github.com/antoniostano/avatarvoice/internal/httpapi"
	"github.com/antoniostano/avatarvoice/internal/observability"
	"github.com/antoniostano/avatarvoice/internal/openclaw"
	"github.com/antoniostano/avatarvoice/internal/projects"
	"github.com/antoniostano/avatarvoice/internal/session"
	"github.com/antoniostano/avatarvoice/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Avatars      *avatars.Catalog
	Metrics      *observability.Metrics
	VoiceDetail  string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	return build(ctx, cfg, logger, observability.NewMetrics(cfg.MetricsNamespace))
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	projectStore, err := projects.NewStore(ctx, cfg.DatabaseURL, cfg.OpenClawAgentID)
	if err != nil {
		return nil, fmt.Errorf("project store init failed: %w", err)
	}

	adapter, err := openclaw.NewAdapter(openclaw.Config{
		Mode:    cfg.OpenClawAdapterMode,
		BaseURL: cfg.OpenClawBaseURL,
		Token:   cfg.OpenClawToken,
		AgentID: cfg.OpenClawAgentID,
		Model:   cfg.OpenClawModel,
		Timeout: cfg.OpenClawTimeout,
	})
	if err != nil {
		_ = projectStore.Close()
		return nil, fmt.Errorf("openclaw adapter init failed: %w", err)
	}

	catalog := avatars.NewCatalog(avatars.Config{
		Source:        cfg.AvatarSource,
		PresetsPath:   cfg.AvatarPresetsPath,
		APIKey:        cfg.ElevenLabsAPIKey,
		BaseURL:       cfg.ElevenLabsBaseURL,
		VoicesTimeout: cfg.ElevenLabsVoicesAPITimeout,
		TTL:           cfg.AvatarCacheTTL,
	}, logger)

	voiceSetup := resolveVoiceBackends(cfg, logger)

	sessions := session.NewManager(cfg.ConnectionIdleTimeout)
	sessions.SetExpireHook(func(c session.Connection) {
		metrics.ConnectionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveConnections.Set(float64(sessions.ActiveCount()))
		logger.Info("audio connection expired", zap.String("connection_id", c.ID))
	})

	orchestrator := voice.NewOrchestrator(voice.Deps{
		Projects:    projectStore,
		Avatars:     catalog,
		Transcriber: voiceSetup.transcriber,
		Replies:     adapter,
		Speech:      voiceSetup.speech,
		Sessions:    sessions,
		Metrics:     metrics,
		Logger:      logger,
	}, voice.Config{
		DefaultLanguage: cfg.WhisperLanguage,
		DefaultVoiceID:  cfg.ElevenLabsDefaultVoiceID,
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Projects:     projectStore,
		Avatars:      catalog,
		OpenClaw:     adapter,
		Metrics:      metrics,
		Logger:       logger,
	})

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Avatars:      catalog,
		Metrics:      metrics,
		VoiceDetail:  voiceSetup.detail,
		Cleanup:      projectStore.Close,
	}, nil
}
