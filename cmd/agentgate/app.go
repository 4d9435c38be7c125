package main

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ensembleai/agentgate/internal/config"
	"github.com/ensembleai/agentgate/internal/gateway"
	"github.com/ensembleai/agentgate/internal/observability"
)

// application holds the active gateway and swaps it atomically on config
// reload. The HTTP server keeps running across reloads; only the pipeline
// behind it changes.
type application struct {
	mu      sync.RWMutex
	gateway *gateway.Gateway
	res     *gateway.Resources
	logger  observability.Logger
}

// Handle implements gateway.Pipeline by delegating to the active gateway.
func (a *application) Handle(c *gin.Context) {
	a.mu.RLock()
	gw := a.gateway
	a.mu.RUnlock()
	gw.Handle(c)
}

// setLogger installs the logger once configuration has produced one. The
// watcher may call reload concurrently, so access goes through the lock.
func (a *application) setLogger(logger observability.Logger) {
	a.mu.Lock()
	a.logger = logger
	a.mu.Unlock()
}

func (a *application) getLogger() observability.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.logger == nil {
		return observability.NopLogger()
	}
	return a.logger
}

// swap installs a new gateway, closing the backends of the previous one.
func (a *application) swap(gw *gateway.Gateway, res *gateway.Resources) {
	a.mu.Lock()
	old := a.res
	a.gateway = gw
	a.res = res
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.getLogger().Warn("closing previous backends", observability.Error(err))
		}
	}
}

// close releases the active gateway's backends.
func (a *application) close() error {
	a.mu.Lock()
	res := a.res
	a.res = nil
	a.mu.Unlock()

	if res == nil {
		return nil
	}
	return res.Close()
}

// reload rebuilds the gateway from a freshly loaded configuration. A build
// failure keeps the running gateway.
func (a *application) reload(cfg *config.Config) {
	logger := a.getLogger()

	gw, res, err := gateway.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("config reload failed, keeping running gateway",
			observability.Error(err))
		return
	}

	a.swap(gw, res)
	logger.Info("configuration reloaded",
		observability.Int("routes", len(cfg.Routes)))
}
