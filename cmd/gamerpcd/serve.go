package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"game-rpc/config"
	"game-rpc/convar"
	"game-rpc/registry"
	"game-rpc/server"
)

func serveCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var vars []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range vars {
				opts, err := config.ParseVar(s)
				if err != nil {
					return err
				}
				cfg.Vars = append(cfg.Vars, opts)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "address game clients connect to")
	f.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address of the /metrics endpoint (empty disables it)")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "drop clients silent for longer")
	f.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "heartbeat interval expected from clients")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time to wait for clients on shutdown")
	f.StringSliceVar(&cfg.EtcdEndpoints, "etcd", nil, "etcd endpoints for persistent variables")
	f.StringVar(&cfg.EtcdPrefix, "etcd-prefix", cfg.EtcdPrefix, "etcd key prefix for persistent variables")
	f.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "requests per second per client (0 disables)")
	f.IntVar(&cfg.RateBurst, "burst", cfg.RateBurst, "request burst per client")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	f.StringArrayVar(&vars, "replicate", nil, "replicated variable server:client:default:access[:persist|notify]")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var store convar.Store
	var etcd *registry.EtcdStore
	if len(cfg.EtcdEndpoints) > 0 {
		var err error
		etcd, err = registry.NewEtcdStore(cfg.EtcdEndpoints, cfg.EtcdPrefix, logger.Named("etcd"))
		if err != nil {
			return err
		}
		defer etcd.Close()
		store = etcd
	}

	srv := server.NewServer(server.Options{
		Logger:      logger,
		Store:       store,
		Registerer:  reg,
		ReadTimeout: cfg.ReadTimeout,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	})
	for _, opts := range cfg.Vars {
		if _, err := srv.RegisterVar(opts); err != nil {
			srv.Shutdown(cfg.ShutdownTimeout)
			return err
		}
	}
	if etcd != nil {
		go srv.WatchStore(ctx, etcd)
	}

	var metrics *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint", zap.Error(err))
			}
		}()
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe("tcp", cfg.ListenAddr) }()

	var err error
	select {
	case err = <-served:
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	if serr := srv.Shutdown(cfg.ShutdownTimeout); serr != nil {
		logger.Warn("shutdown", zap.Error(serr))
	}
	if metrics != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		metrics.Shutdown(sctx)
	}
	return err
}
