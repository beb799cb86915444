// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the diagnosis pipeline over HTTP: classify a
// conversation, fetch cached metrics or graphs, health and prometheus
// endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/pipeline"
)

// ClassifyRequest is the POST /v1/classify body. A missing conversation id
// gets a generated one.
type ClassifyRequest struct {
	ConversationID string              `json:"conversation_id"`
	Messages       []core.Message      `json:"messages" binding:"required,min=1"`
	Classification core.Classification `json:"classification"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "cartographer-api"})
}

// HandleClassify runs the full pipeline on the posted conversation and
// returns the result. Successful results are written to the cache when one
// is configured.
func HandleClassify(p *pipeline.Pipeline, cache *pipeline.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ClassifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := req.ConversationID
		if id == "" {
			id = uuid.NewString()
		}
		slog.Info("classify request", "conversation_id", id, "messages", len(req.Messages))

		result, err := p.Process(c.Request.Context(), id, req.Messages, req.Classification)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, pipeline.ErrTooShort) {
				status = http.StatusUnprocessableEntity
			}
			slog.Error("classify failed", "conversation_id", id, "error", err.Error())
			c.JSON(status, gin.H{"error": pipeline.ErrorTag(err)})
			return
		}

		if cache != nil {
			if err := cache.Put(id, result); err != nil {
				slog.Warn("cache write failed", "conversation_id", id, "error", err.Error())
			}
		}
		c.JSON(http.StatusOK, result)
	}
}

// GetMetrics returns the cached metrics record for a conversation.
func GetMetrics(cache *pipeline.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, ok := lookupCached(c, cache)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, result.Metrics)
	}
}

// GetGraph returns the cached node-link graph export for a conversation.
func GetGraph(cache *pipeline.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, ok := lookupCached(c, cache)
		if !ok {
			return
		}
		c.Data(http.StatusOK, "application/json", result.GraphJSON)
	}
}

// lookupCached resolves the :conversationId param against the cache,
// writing the error response itself on any miss.
func lookupCached(c *gin.Context, cache *pipeline.Cache) (*pipeline.Result, bool) {
	if cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result cache is not configured"})
		return nil, false
	}
	id := c.Param("conversationId")
	result, ok, err := cache.Get(id)
	if err != nil {
		slog.Error("cache read failed", "conversation_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache read failed"})
		return nil, false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	return result, true
}
