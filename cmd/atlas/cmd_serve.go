// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/issacting93/Cartographer/services/atlas/api"
	"github.com/issacting93/Cartographer/services/atlas/pipeline"
)

var (
	servePort  string
	serveNoLLM bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the diagnosis pipeline over HTTP",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default ATLAS_PORT or 12310)")
	serveCmd.Flags().BoolVar(&serveNoLLM, "no-llm", false, "deterministic detectors only, no API key needed")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogging("atlas-api", true)
	defer logger.Close()

	cleanup, err := initTracer("cartographer-api")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer cleanup(context.Background())

	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var cache *pipeline.Cache
	if cfg.CacheDir != "" {
		cache, err = pipeline.OpenCache(cfg.CacheDir)
	} else {
		cache, err = pipeline.OpenCacheInMemory()
	}
	if err != nil {
		slog.Warn("cache unavailable, metric and graph lookups disabled", "error", err.Error())
		cache = nil
	} else {
		defer cache.Close()
	}

	p := &pipeline.Pipeline{
		Classifier: buildClassifier(cfg, serveNoLLM),
		Tracker:    cfg.Tracker(),
		MinTurns:   cfg.MinTurns,
	}
	router := api.NewRouter(p, cache)

	port := servePort
	if port == "" {
		port = os.Getenv("ATLAS_PORT")
	}
	if port == "" {
		port = "12310"
	}

	slog.Info("starting atlas API server", "port", port)
	if err := router.Run(":" + port); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}
