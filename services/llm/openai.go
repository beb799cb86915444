// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("cartographer.llm")

// OpenAIClassifier implements Classifier on any OpenAI-compatible
// chat-completion endpoint. A shared rate limiter smooths bursts below the
// provider's request-per-second ceiling; the hard concurrency bound lives in
// the Bounded wrapper.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClassifier builds a classifier from OPENAI_API_KEY and the given
// model (empty = gpt-4o-mini). rps <= 0 disables rate limiting.
func NewOpenAIClassifier(model string, rps float64) (*OpenAIClassifier, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("classifier model not set, defaulting to gpt-4o-mini")
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	slog.Info("initializing semantic classifier", "model", model)
	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: limiter,
	}, nil
}

// Complete implements the Classifier interface.
func (c *OpenAIClassifier) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClassifier.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classifier returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
