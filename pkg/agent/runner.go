package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/tracing"
)

// DefaultCooldown is multiplied by a profile's consecutive failure count
const DefaultCooldown = time.Minute

// Client sends completion requests to the highest priority auth profile that
// is not cooling down, failing over to the next one on transport and rate
// limit errors.
type Client struct {
	logger          zerolog.Logger
	providerFactory ProviderCreator
	model           ModelConfig
	cooldown        time.Duration
	clock           func() time.Time

	authProfiles []AuthProfile
	authMu       sync.RWMutex
}

// Config holds client configuration
type Config struct {
	Profiles        []AuthProfile
	ProviderFactory ProviderCreator
	Model           ModelConfig
	Cooldown        time.Duration
	Logger          zerolog.Logger
}

// NewClient creates a new model client
func NewClient(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}
	if cfg.Model.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	seen := make(map[string]bool, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("auth profile id is required")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate auth profile: %s", p.ID)
		}
		seen[p.ID] = true
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{MaxRetries: cfg.Model.MaxRetries}
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	profiles := make([]AuthProfile, len(cfg.Profiles))
	copy(profiles, cfg.Profiles)

	return &Client{
		logger:          cfg.Logger.With().Str("component", "agent").Logger(),
		providerFactory: providerFactory,
		model:           cfg.Model,
		cooldown:        cooldown,
		clock:           time.Now,
		authProfiles:    profiles,
	}, nil
}

// Model returns the model configuration used for requests
func (c *Client) Model() ModelConfig {
	return c.model
}

// Complete sends one chat request using the configured model
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []ChatMessage) (*LLMResponse, error) {
	return c.executeWithFailover(ctx, LLMRequest{
		Model:        c.model.Model,
		Messages:     messages,
		Temperature:  c.model.Temperature,
		MaxTokens:    c.model.MaxTokens,
		SystemPrompt: systemPrompt,
	})
}

// Profiles returns a copy of the auth profiles with their current health
func (c *Client) Profiles() []AuthProfile {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	out := make([]AuthProfile, len(c.authProfiles))
	copy(out, c.authProfiles)
	return out
}

// executeWithFailover executes with auth profile failover
func (c *Client) executeWithFailover(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	profiles := c.Profiles()
	sortProfilesByPriority(profiles)
	logger := tracing.LoggerFromContext(ctx, c.logger)

	var lastErr error
	attempted := 0

	for _, profile := range profiles {
		now := c.clock()
		if profile.CooldownUntil != nil && now.UnixMilli() < *profile.CooldownUntil {
			logger.Debug().Str("profileId", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		if attempted > 0 {
			observability.RecordProviderFailover(profile.ID)
		}
		attempted++

		provider, err := c.providerFactory.NewProvider(profile)
		if err != nil {
			lastErr = err
			logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Failed to create provider")
			continue
		}

		start := c.clock()
		response, err := c.executeWithProvider(ctx, provider, request)
		observability.RecordProviderCall(provider.Provider(), c.clock().Sub(start), err == nil)
		if err == nil {
			c.updateProfileSuccess(profile.ID)
			return response, nil
		}

		err = Classify(provider.Provider(), err)
		lastErr = err
		logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Auth profile failed")
		c.updateProfileFailure(profile.ID)

		// Protocol errors would fail the same way on every profile
		if !IsRetryableError(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		return nil, &ModelError{Kind: KindTransport, Provider: "agent", Err: ErrNoProfiles}
	}
	logger.Error().Err(lastErr).Msg("All auth profiles failed")

	var me *ModelError
	if errors.As(lastErr, &me) {
		return nil, &ModelError{Kind: me.Kind, Provider: me.Provider, StatusCode: me.StatusCode,
			Err: fmt.Errorf("all auth profiles failed: %w", me.Err)}
	}
	return nil, &ModelError{Kind: KindProtocol, Provider: "agent", Err: fmt.Errorf("all auth profiles failed: %w", lastErr)}
}

// executeWithProvider executes with a specific LLM provider
func (c *Client) executeWithProvider(ctx context.Context, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agent.complete",
		attribute.String("provider", provider.Provider()),
		attribute.String("model", request.Model),
	)
	defer span.End()

	response, err := provider.Call(ctx, request)
	if err != nil {
		return nil, tracing.FailSpan(span, err)
	}
	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("input_tokens", response.Usage.InputTokens),
			attribute.Int("output_tokens", response.Usage.OutputTokens),
		)
	}
	return response, nil
}

// updateProfileSuccess resets failure count for a profile
func (c *Client) updateProfileSuccess(profileID string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	for i := range c.authProfiles {
		if c.authProfiles[i].ID == profileID {
			c.authProfiles[i].FailureCount = 0
			c.authProfiles[i].CooldownUntil = nil
			break
		}
	}
}

// updateProfileFailure puts a profile in cooldown, longer after each consecutive failure
func (c *Client) updateProfileFailure(profileID string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	for i := range c.authProfiles {
		if c.authProfiles[i].ID == profileID {
			c.authProfiles[i].FailureCount++
			until := c.clock().Add(c.cooldown * time.Duration(c.authProfiles[i].FailureCount)).UnixMilli()
			c.authProfiles[i].CooldownUntil = &until
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}
