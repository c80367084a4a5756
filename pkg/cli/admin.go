package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lowfatcats/contentstore/pkg/api"
	"github.com/lowfatcats/contentstore/pkg/health"
	"github.com/lowfatcats/contentstore/pkg/middleware/ratelimit"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/observability/metrics"
	"github.com/lowfatcats/contentstore/pkg/server"
	"github.com/lowfatcats/contentstore/pkg/version"
)

// errUnhealthy is returned by healthcheck when a dependency fails.
var errUnhealthy = errors.New("dependencies are unhealthy")

func (a *app) serveCommand() *cobra.Command {
	var createTables bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if createTables {
				if err := rt.backend.Provision(ctx); err != nil {
					return fmt.Errorf("provision %s store: %w", rt.backend.Name, err)
				}
			}

			srv := server.NewServer(server.Config{
				Port:            rt.cfg.HTTP.Port,
				ReadTimeout:     rt.cfg.HTTP.ReadTimeout,
				WriteTimeout:    rt.cfg.HTTP.WriteTimeout,
				IdleTimeout:     rt.cfg.HTTP.IdleTimeout,
				ShutdownTimeout: rt.cfg.HTTP.ShutdownTimeout,
			}, a.router(rt), rt.log)
			return srv.Start(ctx)
		}),
	}
	cmd.Flags().BoolVar(&createTables, "create-tables", false, "create tables or indexes before serving")
	return cmd
}

func (a *app) router(rt *runtime) *gin.Engine {
	if rt.cfg.Observability.LogLevel != string(logger.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := health.NewRegistry()
	checks.Register(health.NewPingChecker("ping"))
	checks.Register(health.NewAdapterChecker(rt.backend.Name, rt.backend, 2*time.Second))

	routerCfg := api.RouterConfig{
		Service: rt.service,
		Logger:  rt.log,
		Health:  checks,
		Version: version.Current(rt.cfg.Service.Name),
	}
	if rt.cfg.Observability.MetricsEnabled {
		routerCfg.Metrics = metrics.NewRegistry()
	}
	if rl := rt.cfg.HTTP.RateLimit; rl.Enabled {
		routerCfg.Limiter = ratelimit.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst)
	}
	return api.NewRouter(routerCfg)
}

func (a *app) tablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Table management commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the Content and Brief tables (DynamoDB) or their indexes (MongoDB)",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			if err := rt.backend.Provision(cmd.Context()); err != nil {
				return fmt.Errorf("provision %s store: %w", rt.backend.Name, err)
			}
			rt.log.Info("tables ready", "backend", rt.backend.Name, "prefix", rt.cfg.Store.Prefix)
			return nil
		}),
	})
	return cmd
}

func (a *app) healthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the store backend",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			checks := health.NewRegistry()
			checks.Register(health.NewAdapterChecker(rt.backend.Name, rt.backend, 5*time.Second))
			result := checks.Check(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsHealthy() {
				return errUnhealthy
			}
			return nil
		}),
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Current(a.opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.loadConfig(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			shown := cfg.Redacted()
			if showSecrets {
				shown = *cfg
			}
			data, err := yaml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	cmd.AddCommand(showCmd)
	return cmd
}
