// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/issacting93/Cartographer/services/atlas/metrics"
	"github.com/issacting93/Cartographer/services/atlas/pipeline"
)

var (
	enrichedPath string
	sourceDir    string
	outputDir    string
	sampleN      int
	modelName    string
	concurrent   int
	noLLM        bool
	force        bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the diagnosis pipeline over a classified corpus",
		RunE:  runBatch,
	}
)

func init() {
	runCmd.Flags().StringVar(&enrichedPath, "enriched", "", "enriched classification JSON (required)")
	_ = runCmd.MarkFlagRequired("enriched")
	runCmd.Flags().StringVar(&sourceDir, "source-dir", "", "fallback directory for raw conversation files")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "data/atlas", "directory for graphs, metrics and reports")
	runCmd.Flags().IntVar(&sampleN, "sample", 0, "process a random sample of N conversations")
	runCmd.Flags().StringVar(&modelName, "model", "", "semantic classifier model (overrides config)")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 0, "conversations in flight at once (overrides config)")
	runCmd.Flags().BoolVar(&noLLM, "no-llm", false, "deterministic detectors only, no API key needed")
	runCmd.Flags().BoolVar(&force, "force", false, "reprocess conversations already in the cache")
}

func runBatch(cmd *cobra.Command, args []string) error {
	logger := setupLogging("atlas", false)
	defer logger.Close()

	cleanup, err := initTracer("cartographer-atlas")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer cleanup(context.Background())

	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	if concurrent > 0 {
		cfg.Concurrency = concurrent
	}

	entries, err := pipeline.LoadEnriched(enrichedPath)
	if err != nil {
		return err
	}
	slog.Info("loaded enriched data", "path", enrichedPath, "entries", len(entries))
	if sampleN > 0 {
		entries = pipeline.Sample(entries, sampleN)
		slog.Info("sampled entries", "n", len(entries))
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(outputDir, "cache")
	}
	cache, err := pipeline.OpenCache(cacheDir)
	if err != nil {
		slog.Warn("cache unavailable, every conversation will be reprocessed", "error", err.Error())
		cache = nil
	} else {
		defer cache.Close()
	}

	runner := &pipeline.Runner{
		Pipeline: &pipeline.Pipeline{
			Classifier: buildClassifier(cfg, noLLM),
			Tracker:    cfg.Tracker(),
			MinTurns:   cfg.MinTurns,
		},
		Cache:       cache,
		SourceDir:   sourceDir,
		Concurrency: cfg.Concurrency,
		Force:       force,
	}

	batch := runner.Run(cmd.Context(), entries)
	if len(batch.Results) == 0 {
		slog.Warn("no results to aggregate", "errors", len(batch.Errors))
		return writeErrors(outputDir, batch)
	}

	if err := writeOutputs(outputDir, batch); err != nil {
		return err
	}
	printSummary(batch)
	return nil
}

func writeOutputs(outputDir string, batch *pipeline.Batch) error {
	graphsDir := filepath.Join(outputDir, "graphs")
	if err := os.MkdirAll(graphsDir, 0750); err != nil {
		return fmt.Errorf("create graphs dir: %w", err)
	}
	for _, r := range batch.Results {
		if len(r.GraphJSON) == 0 {
			continue
		}
		path := filepath.Join(graphsDir, r.ConversationID+".json")
		if err := os.WriteFile(path, r.GraphJSON, 0644); err != nil {
			return fmt.Errorf("write graph %s: %w", r.ConversationID, err)
		}
	}

	metricsDir := filepath.Join(outputDir, "metrics")
	if err := os.MkdirAll(metricsDir, 0750); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}

	all := batch.Metrics()
	agg := metrics.Aggregate(all)

	if err := writeJSON(filepath.Join(metricsDir, "all_metrics.json"), all); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(metricsDir, "aggregate.json"), agg); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(metricsDir, "by_stability_class.json"), agg.ByStabilityClass); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(metricsDir, "by_architecture.json"), agg.ByArchitecture); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(metricsDir, "by_hardness.json"), agg.ByHardness); err != nil {
		return err
	}
	report := metrics.Report(all)
	if err := os.WriteFile(filepath.Join(metricsDir, "metrics_report.md"), []byte(report), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return writeErrors(outputDir, batch)
}

func writeErrors(outputDir string, batch *pipeline.Batch) error {
	if len(batch.Errors) == 0 {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeJSON(filepath.Join(outputDir, "errors.json"), batch.Errors)
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func printSummary(batch *pipeline.Batch) {
	all := batch.Metrics()
	agg := metrics.Aggregate(all)
	overall := agg.Overall

	fmt.Printf("\nATLAS PIPELINE RESULTS (N=%d)\n", agg.Total)
	fmt.Printf("  Drift Velocity (mean):        %.4f\n", overall.MeanDriftVelocity)
	fmt.Printf("  Agency Tax (mean):            %.4f\n", overall.MeanAgencyTax)
	if overall.MeanConstraintHalfLife != nil {
		fmt.Printf("  Constraint Half-Life (mean):  %.2f\n", *overall.MeanConstraintHalfLife)
	} else {
		fmt.Printf("  Constraint Half-Life (mean):  N/A\n")
	}
	fmt.Printf("  Constraint Survival Rate:     %.4f\n", overall.MeanSurvivalRate)
	fmt.Printf("  Mode Violation Rate:          %.4f\n", overall.MeanModeViolationRate)
	fmt.Printf("  Move Coverage:                %.4f\n", overall.MeanMoveCoverage)
	fmt.Printf("  Repair Success Rate:          %.4f\n", overall.MeanRepairSuccessRate)
	fmt.Printf("  Total Constraints:            %d\n", overall.TotalConstraints)
	fmt.Printf("  Total Violations:             %d\n", overall.TotalViolations)
	fmt.Printf("  Total Repairs:                %d\n", overall.TotalRepairs)
	fmt.Printf("  Errors:                       %d\n", len(batch.Errors))
}
