package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowfatcats/contentstore/pkg/config"
	"github.com/lowfatcats/contentstore/pkg/content"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/observability/metrics"
	"github.com/lowfatcats/contentstore/pkg/observability/tracing"
	"github.com/lowfatcats/contentstore/pkg/store"
	"github.com/lowfatcats/contentstore/pkg/version"
)

type app struct {
	opts    Options
	cfgPath string
}

// runtime holds everything a command needs once configuration is loaded.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	backend *store.Backend
	service *content.Service
	tracer  *tracing.TracerProvider
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewViperLoader(a.cfgPath, a.opts.EnvPrefix)
	for name, key := range flagKeys {
		loader.WithFlag(key, cmd.Flags().Lookup(name))
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLogLevel(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format, Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With("service", cfg.Service.Name), nil
}

// open loads configuration, builds the logger and tracer and connects the
// backend. Callers must Close the runtime.
func (a *app) open(cmd *cobra.Command) (*runtime, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Observability.LogLevel == string(logger.DebugLevel) {
		log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg.Redacted()))
	}

	t := cfg.Observability.Tracing
	tracer, err := tracing.NewTracerProvider(cmd.Context(), tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       t.Endpoint,
		SampleRate:     t.SampleRate,
		Enabled:        t.Enabled,
		Insecure:       t.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer: %w", err)
	}

	backend, err := a.opts.OpenBackend(cfg.Store, log)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	svcOpts := []content.Option{content.WithLogger(log)}
	if cfg.Observability.MetricsEnabled {
		svcOpts = append(svcOpts, content.WithObserver(metrics.NewObserver()))
	}
	return &runtime{
		cfg:     cfg,
		log:     log,
		backend: backend,
		service: content.NewService(backend.Store, retrievalConfig(cfg.Retrieval), svcOpts...),
		tracer:  tracer,
	}, nil
}

func retrievalConfig(r config.RetrievalConfig) content.Config {
	return content.Config{
		ListLimit:         r.ListLimit,
		QueryTSLimit:      r.QueryTSLimit,
		FeaturedLimit:     r.FeaturedLimit,
		ScanPageSize:      r.ScanPageSize,
		ScanBriefPageSize: r.ScanBriefPageSize,
		QueryPageSize:     r.QueryPageSize,
		Throttle:          r.Throttle,
	}
}

// Close releases the backend and flushes traces.
func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(r.backend.Close(), r.tracer.Shutdown(ctx))
}

// withRuntime opens a runtime around fn.
func (a *app) withRuntime(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := a.open(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.Close(); cerr != nil {
				rt.log.Warn("failed to release resources", "error", cerr)
			}
		}()
		return fn(cmd, args, rt)
	}
}
