package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"registry-federation/internal/baseline"
	"registry-federation/internal/config"
	"registry-federation/internal/federation"
	"registry-federation/internal/fetch"
	"registry-federation/internal/logs"
	"registry-federation/internal/metrics"
	"registry-federation/internal/peers"
	"registry-federation/internal/store"
)

const etcdDialTimeout = 5 * time.Second

// app wires every component from a Config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	logs     *logs.Buffer
	metrics  *metrics.Registry
	cache    store.Cache
	memory   *store.Memory // nil unless cache backend is memory
	baseline baseline.Store
	registry *peers.Registry
	engine   *federation.Engine

	closers []func() error
}

// loadConfig reads --config, or returns defaults when it is unset.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.ReadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, buf, err := logs.New(logs.Options{Level: level, BufferSize: cfg.LogBuffer})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		logs:    buf,
		metrics: metrics.NewRegistry(),
	}

	switch cfg.Cache.Backend {
	case "etcd":
		cli, err := store.DialEtcd(cfg.Cache.EtcdEndpoints, etcdDialTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cli.Close)
		a.cache = store.NewEtcd(cli, cfg.Cache.EtcdPrefix, a.metrics)
	default:
		a.memory = store.NewMemory(a.metrics)
		a.cache = a.memory
	}

	switch cfg.Baseline.Backend {
	case "sqlite":
		s, err := baseline.OpenSQLite(cfg.Baseline.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.baseline = s
	default:
		a.baseline = baseline.NewMemory()
	}

	a.registry, err = cfg.BuildRegistry(a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.New(cfg.PeerConfig(), logger, a.metrics)
	a.engine = federation.NewEngine(
		a.cache,
		fetcher,
		a.registry,
		a.baseline,
		logger,
		a.metrics,
		federation.WithPeerTTL(cfg.Fetch.PeerTTL.Duration),
	)

	logger.Debug("components wired",
		zap.String("cache", cfg.Cache.Backend),
		zap.String("baseline", cfg.Baseline.Backend),
		zap.Int("peers", len(cfg.Peers)),
	)
	return a, nil
}

// Close releases backend connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing backend", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
