package main

import (
	"context"
	"fmt"

	"specscrape/internal/config"
	"specscrape/internal/crawler"
	"specscrape/internal/db"
	"specscrape/internal/repository"
)

func newClient(cfg *config.Config) (*crawler.Client, error) {
	return crawler.NewClient(crawler.ClientOptions{
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.Timeout(),
		RequestDelay:  cfg.RequestDelay(),
		MaxRetries:    cfg.MaxRetries,
		RetryWait:     cfg.RetryWait(),
		RetryMaxWait:  cfg.RetryMaxWait(),
		DisableBypass: cfg.DisableBypass,
	})
}

func newSource(cfg *config.Config) crawler.ProductSource {
	if cfg.Source == config.SourceHTML {
		return crawler.HTMLSource{Selectors: cfg.Selectors}
	}
	return crawler.APISource{Base: cfg.PageInfoBase}
}

// newProgress returns the configured store and a cleanup func.
func newProgress(ctx context.Context, cfg *config.Config) (repository.ProgressStore, func(), error) {
	if cfg.ProgressBackend == config.BackendRedis {
		client, err := db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return repository.NewRedisProgress(client, cfg.ProductType), func() { client.Close() }, nil
	}
	return repository.NewFileProgress(cfg.ProgressPath()), func() {}, nil
}
