/*
Package monitoring provides Prometheus metrics for the terminal backend.

# Overview

Metrics are registered on an explicit registry so tests and multiple
servers in one process never collide. Every recorder method accepts a nil
receiver, which lets components take metrics as an optional dependency.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.RecordFlush("timer", 512)
	metrics.SetQueueDepth(3)
*/
package monitoring
