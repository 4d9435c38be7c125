package gateway

import (
	"context"
	"fmt"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/auth/apikey"
	"github.com/ensembleai/agentgate/internal/auth/basic"
	"github.com/ensembleai/agentgate/internal/auth/bearer"
	"github.com/ensembleai/agentgate/internal/auth/session"
	"github.com/ensembleai/agentgate/internal/auth/signature"
	"github.com/ensembleai/agentgate/internal/config"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/policy"
	"github.com/ensembleai/agentgate/internal/ratelimit"
	rlstore "github.com/ensembleai/agentgate/internal/ratelimit/store"
	"github.com/ensembleai/agentgate/internal/router"
	"github.com/ensembleai/agentgate/internal/store"
)

// Resources holds the backends a built gateway owns. Close releases them
// on shutdown.
type Resources struct {
	KV       store.KV
	Counters rlstore.Store
}

// Close releases all owned backends.
func (r *Resources) Close() error {
	var firstErr error
	if r.KV != nil {
		if err := r.KV.Close(); err != nil {
			firstErr = err
		}
	}
	if r.Counters != nil {
		if err := r.Counters.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build wires a gateway from a validated configuration. Validators are
// registered only for the methods present in the config; a rule naming an
// unconfigured method fails at request time with a logged error.
func Build(ctx context.Context, cfg *config.Config, logger observability.Logger, opts ...Option) (*Gateway, *Resources, error) {
	res := &Resources{}

	kv, err := buildKV(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	res.KV = kv

	counters, err := buildCounters(ctx, cfg, logger)
	if err != nil {
		_ = res.Close()
		return nil, nil, err
	}
	res.Counters = counters

	authMetrics := auth.NewMetrics("agentgate")
	registry := auth.NewRegistry()
	basicChallenge := ""

	v := cfg.Auth.Validators
	if v.Bearer != nil {
		bv, err := bearer.NewValidator(ctx, v.Bearer, bearer.WithLogger(logger), bearer.WithMetrics(authMetrics))
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("bearer validator: %w", err)
		}
		if err := registry.Register(bv); err != nil {
			_ = res.Close()
			return nil, nil, err
		}
	}
	if v.APIKey != nil {
		av, err := apikey.NewValidator(v.APIKey, kv, apikey.WithLogger(logger), apikey.WithMetrics(authMetrics))
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("api key validator: %w", err)
		}
		if err := registry.Register(av); err != nil {
			_ = res.Close()
			return nil, nil, err
		}
	}
	if v.Session != nil {
		sv, err := session.NewValidator(v.Session, kv, session.WithLogger(logger), session.WithMetrics(authMetrics))
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("session validator: %w", err)
		}
		if err := registry.Register(sv); err != nil {
			_ = res.Close()
			return nil, nil, err
		}
	}
	if v.Basic != nil {
		bv, err := basic.NewValidator(v.Basic, basic.WithLogger(logger), basic.WithMetrics(authMetrics))
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("basic validator: %w", err)
		}
		if err := registry.Register(bv); err != nil {
			_ = res.Close()
			return nil, nil, err
		}
		basicChallenge = bv.WWWAuthenticate()
	}
	if v.Signature != nil {
		sv, err := signature.NewValidator(v.Signature, signature.WithLogger(logger), signature.WithMetrics(authMetrics))
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("signature validator: %w", err)
		}
		if err := registry.Register(sv); err != nil {
			_ = res.Close()
			return nil, nil, err
		}
	}

	defaults := make(map[policy.OperationKind]policy.Rule, len(cfg.Auth.Defaults))
	for kind, rule := range cfg.Auth.Defaults {
		if rule != nil {
			defaults[policy.OperationKind(kind)] = *rule
		}
	}
	resolver := policy.NewResolver(defaults, cfg.Auth.PathRules)

	rt := router.New()
	for i := range cfg.Routes {
		if err := rt.Register(cfg.Routes[i].ToRoute()); err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("route %d: %w", i, err)
		}
	}

	limiter := buildLimiter(cfg, counters, logger)

	gwOpts := []Option{
		WithLogger(logger),
		WithMetrics(NewMetrics("agentgate")),
		WithLimiter(limiter),
		WithBasicChallenge(basicChallenge),
	}
	gwOpts = append(gwOpts, opts...)

	return New(rt, resolver, registry, gwOpts...), res, nil
}

func buildKV(ctx context.Context, cfg *config.Config, logger observability.Logger) (store.KV, error) {
	switch cfg.Store.Type {
	case "", config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreRedis:
		return store.NewRedis(ctx, cfg.Store.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func buildCounters(ctx context.Context, cfg *config.Config, logger observability.Logger) (rlstore.Store, error) {
	switch cfg.Store.Type {
	case "", config.StoreMemory:
		return rlstore.NewMemory(), nil
	case config.StoreRedis:
		rc := rlstore.DefaultRedisConfig()
		rc.Address = cfg.Store.Redis.Address
		rc.Password = cfg.Store.Redis.Password
		rc.DB = cfg.Store.Redis.DB
		if cfg.Store.Redis.Prefix != "" {
			rc.Prefix = cfg.Store.Redis.Prefix + "rl:"
		}
		if cfg.Store.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Store.Redis.PoolSize
		}
		return rlstore.NewRedis(ctx, rc, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func buildLimiter(cfg *config.Config, counters rlstore.Store, logger observability.Logger) Limiter {
	if cfg.RateLimit.Algorithm == config.RateLimitTokenBucket {
		return ratelimit.NewTokenBucket(ratelimit.Limit{})
	}
	return ratelimit.NewFixedWindow(counters, ratelimit.Limit{},
		ratelimit.WithFixedWindowLogger(logger))
}
