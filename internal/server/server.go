// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hobu/greyhound/internal/config"
	"github.com/hobu/greyhound/internal/pki"
	"github.com/hobu/greyhound/internal/resource"
)

// Run starts the plain HTTP listener and, when cfg.HTTP.SecurePort is
// configured, an additional TLS listener on the same router — both bound
// before Run returns, both shut down together when ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, manager *resource.Manager, logger *slog.Logger) error {
	handler := NewRouter(manager, logger, cfg.HTTP.AllowOrigins)

	manager.Start()
	defer manager.Shutdown()

	var servers []*http.Server
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	plain := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler,
	}
	servers = append(servers, plain)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("listening", "addr", plain.Addr, "tls", false)
		if err := plain.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("plain listener: %w", err)
		}
	}()

	if cfg.HTTP.SecurePort != 0 {
		tlsConfig, err := pki.NewServerTLSConfig(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		if err != nil {
			return fmt.Errorf("building TLS config: %w", err)
		}

		secure := &http.Server{
			Addr:      fmt.Sprintf(":%d", cfg.HTTP.SecurePort),
			Handler:   handler,
			TLSConfig: tlsConfig,
		}
		servers = append(servers, secure)

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("listening", "addr", secure.Addr, "tls", true)
			if err := serveTLS(secure); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("secure listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		shutdown(servers, logger)
		wg.Wait()
		return err
	}

	shutdown(servers, logger)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// serveTLS calls ListenAndServeTLS with empty cert/key paths since the
// certificate pair is already loaded into srv.TLSConfig by
// pki.NewServerTLSConfig.
func serveTLS(srv *http.Server) error {
	return srv.ListenAndServeTLS("", "")
}

func shutdown(servers []*http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown failed, forcing close", "addr", s.Addr, "error", err)
			_ = s.Close()
		}
	}
}

// RunWithListener is the test seam: it serves handler on an
// already-bound net.Listener instead of binding cfg.HTTP.Port itself,
// returning once ctx is cancelled or the listener errors.
func RunWithListener(ctx context.Context, ln net.Listener, manager *resource.Manager, logger *slog.Logger, allowOrigins []string) error {
	handler := NewRouter(manager, logger, allowOrigins)

	manager.Start()
	defer manager.Shutdown()

	srv := &http.Server{Handler: handler}
	errCh := make(chan error, 1)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
