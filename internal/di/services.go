package di

import (
	"context"
	"fmt"

	"github.com/aristath/consensus/internal/alerts"
	"github.com/aristath/consensus/internal/clients/dataroma"
	"github.com/aristath/consensus/internal/clients/gemini"
	"github.com/aristath/consensus/internal/clients/substack"
	"github.com/aristath/consensus/internal/clients/yahoo"
	"github.com/aristath/consensus/internal/config"
	"github.com/aristath/consensus/internal/export"
	"github.com/aristath/consensus/internal/fetch"
	"github.com/aristath/consensus/internal/notify"
	"github.com/aristath/consensus/internal/pipeline"
	"github.com/aristath/consensus/internal/publish"
	"github.com/aristath/consensus/internal/ticker"
	"github.com/rs/zerolog"
)

// RetryPolicy builds the per-fetch retry policy from configuration
func RetryPolicy(cfg *config.Config) fetch.RetryPolicy {
	return fetch.RetryPolicy{
		Attempts: cfg.FetchRetries + 1,
		Backoff:  cfg.RetryBackoff,
		Timeout:  cfg.FetchTimeout,
	}
}

// InitializeServices builds the source clients, the output side and the
// pipeline. Optional integrations fall back to local behaviour when their
// credentials are missing.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	retry := RetryPolicy(cfg)
	container.Gate = fetch.NewHostGate(cfg.PolitenessDelay)

	container.Holdings = dataroma.NewClient(dataroma.Options{
		BaseURL: cfg.DataromaBaseURL,
		Timeout: cfg.FetchTimeout,
		Retry:   retry,
		Gate:    container.Gate,
	}, log)

	var extractor ticker.Extractor = ticker.RegexExtractor{}
	if cfg.GeminiAPIKey != "" {
		llm, err := gemini.NewExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini extractor unavailable, using pattern extraction")
		} else {
			extractor = llm
		}
	}

	container.Mentions = substack.NewClient(substack.Options{
		MaxArticles: cfg.MaxArticles,
		Timeout:     cfg.FetchTimeout,
		Retry:       retry,
		Gate:        container.Gate,
		Extractor:   extractor,
	}, log)

	container.Market = yahoo.NewClient(yahoo.Options{
		Timeout: cfg.FetchTimeout,
		Retry:   retry,
		Gate:    container.Gate,
	}, log)

	if cfg.ResendAPIKey != "" {
		container.Notifier = notify.NewResendNotifier(notify.Options{
			APIKey:       cfg.ResendAPIKey,
			From:         cfg.ResendFromEmail,
			DefaultTo:    cfg.AlertEmail,
			DashboardURL: cfg.DashboardURL,
		}, log)
	} else {
		log.Info().Msg("RESEND_API_KEY not set, alerts will only be logged")
		container.Notifier = notify.NewLogNotifier(log)
	}

	container.Writer = export.NewWriter(cfg.DataDir, log)

	if cfg.R2.Enabled() {
		pub, err := publish.New(ctx, publish.Config{
			Endpoint:        cfg.R2.Endpoint,
			Bucket:          cfg.R2.Bucket,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			ObjectKey:       cfg.R2.ObjectKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
		container.Publisher = pub
	}

	deps := pipeline.Deps{
		Holdings: container.Holdings,
		Mentions: container.Mentions,
		Market:   container.Market,
		Store:    container.Store,
		Notifier: container.Notifier,
		Writer:   container.Writer,
	}
	// Assigned only when set so the interface never holds a typed nil
	if container.Publisher != nil {
		deps.Publisher = container.Publisher
	}

	container.Pipeline = pipeline.New(deps, PipelineOptions(cfg), log)
	return nil
}

// PipelineOptions maps configuration onto per-run settings
func PipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.Options{
		ForceFullRefresh: cfg.ForceFullRefresh,
		StaleThreshold:   cfg.StaleThreshold,
		Workers:          cfg.Workers,
		Alerts: alerts.Config{
			PriceThreshold: cfg.PriceAlertThreshold,
			MinHoldings:    cfg.CrossSourceMinHoldings,
			MinMentions:    cfg.CrossSourceMinMentions,
			DisplayLimit:   cfg.AlertDisplayLimit,
		},
	}
	if cfg.Sources != nil {
		opts.Publications = cfg.Sources.Publications
		opts.Investors = cfg.Sources.Investors
		opts.Rules = cfg.Sources.Rules
	}
	return opts
}
