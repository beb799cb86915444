// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/issacting93/Cartographer/services/atlas/pipeline"
)

// SetupRoutes registers every endpoint on the router.
func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, cache *pipeline.Cache) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/classify", HandleClassify(p, cache))
		v1.GET("/metrics/:conversationId", GetMetrics(cache))
		v1.GET("/graphs/:conversationId", GetGraph(cache))
	}
}

// NewRouter builds the service router with tracing middleware applied.
func NewRouter(p *pipeline.Pipeline, cache *pipeline.Cache) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("cartographer-api"))
	SetupRoutes(router, p, cache)
	return router
}
