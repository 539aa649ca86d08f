package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/bi-chat-gateway/auth"
	"github.com/upb/bi-chat-gateway/config"
	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/middleware"
	"github.com/upb/bi-chat-gateway/oidc"
	"github.com/upb/bi-chat-gateway/repositories"
	"github.com/upb/bi-chat-gateway/repositories/postgres"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/services/chat"
	"github.com/upb/bi-chat-gateway/services/chatsession"
	"github.com/upb/bi-chat-gateway/services/completion"
	"github.com/upb/bi-chat-gateway/services/dashboard"
	"github.com/upb/bi-chat-gateway/services/embed"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Dependencies holds every long-lived object of the gateway.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Repository Factory
	RepoFactory  *postgres.RepositoryFactory
	Repositories *repositories.Repositories

	// Outbound HTTP
	IdentityClient *http.Client
	UpstreamClient *http.Client

	// Auth
	KeyResolver    *oidc.KeyResolver
	AuthMiddleware *middleware.AuthMiddleware
	StateStore     *auth.StateStore
	authHandler    *auth.Handler

	// Services
	EmbedScheduler    *embed.Scheduler
	Embed             *embed.Service
	CompletionConfigs *completion.Cache
	ChatProxy         *chat.Proxy
	Dashboards        *dashboard.Service
	ChatSessions      *chatsession.Service
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies opens the document store and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.GetDB().InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps := Wire(cfg, factory, logger)
	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Wire builds every service on top of an open repository factory. It does
// no network I/O; upstream clients connect lazily.
func Wire(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) *Dependencies {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Registry:    registry,
		Metrics:     observability.NewMetrics(registry),
		RepoFactory: factory,
	}

	if factory != nil {
		d.DB = factory.GetDB()
		d.Repositories = factory.NewRepositories()
	}

	d.initHTTPClients(cfg)
	d.initAuth(cfg)
	d.initEmbed(cfg)
	d.initChat(cfg)
	d.initDocuments()

	return d
}

func (d *Dependencies) initHTTPClients(cfg *config.Config) {
	d.IdentityClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.OIDC.HTTPTimeout,
	}
	// no client timeout: completion streams are bounded by the proxy's context
	d.UpstreamClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	var verifier oidc.TokenVerifier = oidc.RejectAll{}
	if cfg.OIDC.Configured() {
		d.KeyResolver = oidc.NewKeyResolver(oidc.KeyResolverConfig{
			JWKSURL:    cfg.OIDC.JWKSURL,
			MaxEntries: cfg.OIDC.KeyCacheSize,
			MaxAge:     cfg.OIDC.KeyCacheMaxAge,
			HTTPClient: d.IdentityClient,
		})
		verifier = oidc.NewVerifier(oidc.Config{
			Issuer:     cfg.OIDC.Issuer,
			Audience:   cfg.OIDC.Audience,
			Algorithms: cfg.OIDC.Algorithms,
		}, d.KeyResolver)
	} else {
		d.Logger.Warn("identity provider not configured, bearer tokens will be rejected")
	}

	var bypass *oidc.DevBypass
	if cfg.DevBypassActive() {
		bypass = oidc.NewDevBypass(cfg.Auth.DevBypassPrefix)
		d.Logger.Warn("development auth bypass enabled", zap.String("prefix", cfg.Auth.DevBypassPrefix))
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(oidc.NewAuthenticator(verifier, bypass), d.Metrics, d.Logger)

	if cfg.OIDC.ClientID == "" || cfg.OIDC.AuthorizeURL == "" || cfg.OIDC.TokenURL == "" {
		d.Logger.Warn("oauth client not configured, login endpoints disabled")
		return
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURI,
		Scopes:       cfg.OIDC.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OIDC.AuthorizeURL,
			TokenURL: cfg.OIDC.TokenURL,
		},
	}
	d.StateStore = auth.NewStateStore(cfg.OIDC.StateTTL)
	flow := auth.NewFlowController(auth.FlowConfig{
		OAuth2:      oauthCfg,
		FrontEndURL: cfg.OIDC.FrontEndURL,
		LogoutURL:   cfg.OIDC.LogoutURL,
	}, d.StateStore, services.NewOIDCTokenExchanger(oauthCfg, d.IdentityClient))
	d.authHandler = auth.NewHandler(flow, d.Metrics, d.Logger.Named("auth"))
	d.Logger.Info("auth handler initialized")
}

func (d *Dependencies) initEmbed(cfg *config.Config) {
	var provider embed.Provider = unconfiguredProvider{}
	if cfg.Embed.ClientID != "" && cfg.Embed.WorkspaceID != "" {
		provider = embed.NewPowerBIClient(embed.PowerBIConfig{
			ClientID:     cfg.Embed.ClientID,
			ClientSecret: cfg.Embed.ClientSecret,
			TokenURL:     cfg.Embed.TokenURL,
			Scope:        cfg.Embed.Scope,
			APIBaseURL:   cfg.Embed.APIBaseURL,
			WorkspaceID:  cfg.Embed.WorkspaceID,
		}, d.IdentityClient)
	} else {
		d.Logger.Warn("embed provider not configured")
	}

	d.EmbedScheduler = embed.NewScheduler(d.Metrics.EmbedScheduled, d.Logger)
	d.Embed = embed.NewService(embed.Config{
		RefreshSkew:    cfg.Embed.RefreshSkew,
		RefreshTimeout: cfg.Embed.RefreshTimeout,
	}, provider, d.EmbedScheduler, d.Metrics, d.Logger)
}

func (d *Dependencies) initChat(cfg *config.Config) {
	var docs repositories.AppDocumentRepository
	if d.Repositories != nil {
		docs = d.Repositories.AppDocuments
	}
	d.CompletionConfigs = completion.NewCache(docs, cfg.Completion.ConfigTTL, d.Metrics, d.Logger)

	if cfg.Completion.Endpoint == "" {
		d.Logger.Warn("completion endpoint not configured")
	}
	d.ChatProxy = chat.NewProxy(chat.Config{
		Endpoint:     cfg.Completion.Endpoint,
		APIKey:       cfg.Completion.APIKey,
		APIKeyHeader: cfg.Completion.APIKeyHeader,
		Model:        cfg.Completion.Model,
		Timeout:      cfg.Completion.Timeout,
	}, d.CompletionConfigs, d.UpstreamClient, d.Metrics, d.Logger)
}

func (d *Dependencies) initDocuments() {
	if d.Repositories == nil {
		return
	}
	d.Dashboards = dashboard.NewService(d.Repositories.Dashboards, d.Logger)
	d.ChatSessions = chatsession.NewService(d.Repositories.ChatSessions, d.Logger)
}

// unconfiguredProvider fails every issuance when no BI credentials are set
type unconfiguredProvider struct{}

var errEmbedNotConfigured = errors.New("embed provider not configured")

func (unconfiguredProvider) Issue(ctx context.Context, resourceID string) (*embed.Credential, error) {
	return nil, &embed.ProviderError{Step: "acquire service token", Err: errEmbedNotConfigured}
}

// Close stops background work and releases the document store
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.EmbedScheduler != nil {
		d.EmbedScheduler.Stop()
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
