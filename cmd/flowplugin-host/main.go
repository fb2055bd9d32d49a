// Command flowplugin-host runs a plugin the way a launcher would, for
// development. Lines typed on stdin become queries; results are printed.
//
// Usage:
//
//	flowplugin-host [-keyword dl] [-log-level debug] -- plugin-command [args...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	keyword := flag.String("keyword", "", "action keyword prefixed to every query")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: flowplugin-host [flags] -- plugin-command [args...]")
		os.Exit(2)
	}

	if err := run(*keyword, *logLevel, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "flowplugin-host: %v\n", err)
		os.Exit(1)
	}
}

func run(keyword, logLevel string, command []string) error {
	logger, _, err := observability.NewFileLogger("", logLevel, observability.FormatLogrus)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stderr = os.Stderr
	pluginIn, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	pluginOut, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start plugin: %w", err)
	}
	logger.Infof("Started plugin %s (pid %d)", command[0], cmd.Process.Pid)

	conn := jsonrpc.NewConn(pluginOut, pluginIn, jsonrpc.UseLogger(logger))
	h, err := newHost(conn, keyword, os.Stdout, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Run(gctx)
	})
	g.Go(func() error {
		if err := conn.Call(gctx, "initialize", nil, map[string]interface{}{
			"currentPluginMetadata": map[string]string{"name": command[0]},
		}); err != nil {
			logger.WithErr(err).Warn("Plugin did not initialize")
		}

		err := h.run(gctx, os.Stdin)
		// Closing the plugin's stdin lets it finish and the connection end.
		pluginIn.Close()
		return err
	})

	err = g.Wait()
	if waitErr := cmd.Wait(); waitErr != nil && err == nil && ctx.Err() == nil {
		err = fmt.Errorf("plugin exited: %w", waitErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
