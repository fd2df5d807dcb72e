// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command greyhound-server runs the Greyhound point-cloud query service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hobu/greyhound/internal/config"
	"github.com/hobu/greyhound/internal/logging"
	"github.com/hobu/greyhound/internal/resource"
	"github.com/hobu/greyhound/internal/server"
)

// repeatableFlag collects every occurrence of a flag into a slice,
// implementing flag.Value so `-data` can be passed more than once.
type repeatableFlag []string

func (r *repeatableFlag) String() string { return fmt.Sprint([]string(*r)) }

func (r *repeatableFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func main() {
	configPath := flag.String("config", "/etc/greyhound/config.yaml", "path to server config file")
	port := flag.Uint("port", 0, "override http.port from the config file")
	var dataPaths repeatableFlag
	flag.Var(&dataPaths, "data", "additional search path for resource resolution (repeatable)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		cfg.HTTP.Port = uint16(*port)
	}
	cfg.Paths = append(cfg.Paths, dataPaths...)

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	manager, err := resource.NewManager(cfg, logger)
	if err != nil {
		logger.Error("failed to construct resource manager", "error", err)
		os.Exit(1)
	}

	if cfg.Prewarm != nil {
		prewarm, err := resource.NewPrewarm(cfg.Prewarm, manager, logger)
		if err != nil {
			logger.Error("failed to construct prewarm scheduler", "error", err)
			os.Exit(1)
		}
		prewarm.Start()
		defer prewarm.Stop(context.Background())
	}

	if err := server.Run(ctx, cfg, manager, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
