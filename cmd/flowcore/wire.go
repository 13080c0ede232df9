package main

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"flowcore/internal/appconfig"
	"flowcore/internal/cache"
	"flowcore/internal/circuitbreaker"
	"flowcore/internal/docloader"
	"flowcore/internal/httpexec"
	"flowcore/internal/orchestrator"
	"flowcore/internal/types"
)

// loadCatalog reads every task/workflow document under tasksDir/workflowsDir
// and builds a resolver over them, surfacing any per-file decode failures
// rather than silently dropping documents.
func loadCatalog() (*orchestrator.MapResolver, *docloader.LoadResult, error) {
	loader := docloader.NewLoader(tasksDir, workflowsDir)
	result, err := loader.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	resolver := orchestrator.NewMapResolver(result.Catalog.Tasks, result.Catalog.Workflows)
	return resolver, result, nil
}

func findWorkflow(result *docloader.LoadResult, name string) (*types.Workflow, error) {
	for _, wf := range result.Catalog.Workflows {
		if wf.Ref().Key() == name || wf.Name == name {
			return wf, nil
		}
	}
	return nil, fmt.Errorf("workflow %q not found under %s", name, workflowsDir)
}

// buildOrchestrator wires one Orchestrator from appconfig defaults, picking
// the memory or Redis cache/circuit backends per cfg.CacheBackend, mirroring
// how station's cmd/main chooses a store implementation from viper config
// rather than hardcoding one.
func buildOrchestrator(cfg *appconfig.Config, resolver orchestrator.Resolver) (*orchestrator.Orchestrator, error) {
	httpExec := httpexec.New(&http.Client{Timeout: cfg.HTTPTimeout})

	var cacheProvider cache.Provider
	var circuitStore circuitbreaker.Store

	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cacheProvider = cache.NewRedisProvider(client, "flowcore:cache:")
		circuitStore = circuitbreaker.NewRedisStore(client, "flowcore:circuit:")
	default:
		cacheProvider = cache.NewMemoryProvider(cfg.CacheMaxSize)
		circuitStore = circuitbreaker.NewMemoryStore()
	}

	breaker := circuitbreaker.New(circuitStore)
	return orchestrator.New(cfg, httpExec, cacheProvider, breaker, resolver), nil
}
