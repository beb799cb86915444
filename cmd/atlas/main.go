// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/issacting93/Cartographer/pkg/logging"
	"github.com/issacting93/Cartographer/services/atlas/pipeline"
	"github.com/issacting93/Cartographer/services/llm"
)

var (
	configPath string
	logDir     string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "atlas",
		Short: "Diagnose conversation governance: moves, modes, constraints, graphs, metrics",
		Long: `Atlas runs task-classified conversations through the full diagnosis
pipeline: communicative move classification, interaction mode detection,
constraint lifecycle tracking, graph construction and metric derivation.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, serveCmd)
}

// setupLogging installs the process-wide default logger.
func setupLogging(service string, json bool) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: service,
		JSON:    json,
	})
	slog.SetDefault(logger.Slog())
	return logger
}

// initTracer wires the OTLP-gRPC exporter when a collector endpoint is
// configured; without one, tracing stays local and the cleanup is a no-op.
func initTracer(serviceName string) (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildClassifier assembles the semantic classifier stack: OpenAI backend,
// concurrency bound, retry wrapper. Returns nil (deterministic-only) when
// disabled or when no API key is configured.
func buildClassifier(cfg pipeline.Config, disabled bool) llm.Classifier {
	if disabled {
		slog.Info("running in deterministic-only mode (no LLM)")
		return nil
	}
	base, err := llm.NewOpenAIClassifier(cfg.Model, cfg.RequestsPerSecond)
	if err != nil {
		slog.Warn("semantic classifier unavailable, running deterministic-only", "error", err.Error())
		return nil
	}
	return llm.NewRetrying(llm.NewBounded(base, cfg.MaxInFlight), 3, time.Second)
}
