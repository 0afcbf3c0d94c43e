package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samsaffron/tierchat/internal/config"
	"github.com/samsaffron/tierchat/internal/conversation"
	"github.com/samsaffron/tierchat/internal/fetch"
	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/prompt"
	"github.com/samsaffron/tierchat/internal/router"
	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/samsaffron/tierchat/internal/session"
	"github.com/samsaffron/tierchat/internal/tools"
)

func loadConfig() (*config.Config, error) {
	if err := secrets.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// app is the wired set of collaborators shared by the chat commands.
type app struct {
	cfg     *config.Config
	secrets *secrets.Resolver
	store   session.Store
	engine  *llm.Engine
	logger  *slog.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	logger := slog.Default()
	keys := secrets.NewResolver(secrets.NewKeyringStore())
	models := cfg.LLMModels()
	httpClient := llm.NewHTTPClient(cfg.Transport.ConnectTimeout)

	client := llm.NewClient(llm.ClientConfig{
		BaseURL:     cfg.Anthropic.BaseURL,
		APIVersion:  cfg.Anthropic.APIVersion,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		IdleTimeout: cfg.Transport.IdleTimeout,
		HTTPClient:  httpClient,
	}, keys)
	// Classification and weather extraction are single non-streaming calls.
	// Failures degrade to defaults, so they are never retried.
	completer := llm.NewSDKCompleter(cfg.Anthropic.BaseURL, keys, httpClient, 0)

	policy, err := router.PolicyByName(cfg.Router.Policy)
	if err != nil {
		return nil, err
	}
	policy.Threshold = cfg.Router.Threshold
	rt := router.New(completer, models.Cheap, policy, logger.With("component", "router"))

	registry, err := newRegistry(cfg, keys, completer, models.Cheap, logger)
	if err != nil {
		return nil, err
	}

	engine := llm.NewEngine(client, rt, registry, llm.EngineConfig{
		Models:        models,
		MaxIterations: cfg.Loop.MaxIterations,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		ParallelTools: cfg.Loop.ParallelTools,
	}, logger.With("component", "engine"))

	store, err := session.NewStore(session.Config{
		Enabled: cfg.Session.Enabled,
		Path:    cfg.Session.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	return &app{
		cfg:     cfg,
		secrets: keys,
		store:   store,
		engine:  engine,
		logger:  logger,
	}, nil
}

func newRegistry(cfg *config.Config, keys *secrets.Resolver, completer llm.Completer, extractionModel string, logger *slog.Logger) (*tools.Registry, error) {
	catalog, err := fetch.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(fetch.Options{
		HTTPClient:    &http.Client{},
		RatePerSecond: cfg.Fetch.RatePerSecond,
		MaxBytes:      cfg.Fetch.MaxBytes,
		MinContent:    cfg.Fetch.MinContent,
		Timeout:       cfg.Fetch.Timeout,
	})
	searcher := tools.NewSearcher(cfg.Tools.SearchBaseURL, keys, &http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Tools.MaxResults)

	clock, err := tools.NewClockTool(cfg.Tools.Timezone)
	if err != nil {
		return nil, err
	}

	toolLogger := logger.With("component", "tools")
	registry := tools.NewRegistry(keys, toolLogger)
	registry.Register(clock)
	registry.Register(tools.NewLookupTool(catalog, fetcher, searcher, toolLogger))
	registry.Register(tools.NewWebSearchTool(searcher))
	registry.Register(tools.NewWeatherTool(searcher, completer, extractionModel, cfg.Tools.DefaultLocation, toolLogger))
	return registry, nil
}

// conversation binds sessionID to the engine.
func (a *app) conversation(sessionID string) *conversation.Conversation {
	return conversation.New(sessionID, a.store, a.engine, conversation.Options{
		System:  prompt.ChatSystemPrompt(a.cfg.SystemPrompt),
		MaxTips: a.cfg.Router.MaxTips,
		Tier:    a.cfg.ForcedTier(),
		Logger:  a.logger,
	})
}

// requireAPIKey fails fast instead of routing a turn that cannot stream.
func (a *app) requireAPIKey() error {
	if !a.secrets.Has(secrets.AnthropicAPIKey) {
		return llm.ErrMissingAPIKey
	}
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}
