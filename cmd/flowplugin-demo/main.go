// Command flowplugin-demo is an example launcher plugin. It speaks JSON-RPC
// on stdin and stdout and logs to the file named in its configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaharia-lab/flowplugin"
	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flowplugin-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := flowplugin.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := observability.NewFileLogger(cfg.Log.Path, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()

	store, err := cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithErr(err).Error("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	connOpts := append(cfg.ConnOptions(), jsonrpc.UseMetrics(metrics))
	plugin, err := flowplugin.New(
		flowplugin.UseLogger(logger),
		flowplugin.UseConnOptions(connOpts...),
		flowplugin.UseUpdateInterval(cfg.RPC.UpdateInterval),
	)
	if err != nil {
		return err
	}

	if err := registerMethods(plugin, store, logger, 500*time.Millisecond); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = plugin.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
