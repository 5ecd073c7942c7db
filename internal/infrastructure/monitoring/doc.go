/*
Package monitoring provides metrics collection for the plugin host.

# Overview

Prometheus-based metrics for the type registration bridge, the page bridge
and the introspection API. Each Metrics value owns its own registry.

# Features

- Type bridge metrics (registrations, fast/slow resolves, failures, pinned handles)
- Page bridge metrics (scriptable objects, createable types, popups)
- HTTP request metrics (latency, status)
- WebSocket connection metrics
- Uptime

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordResolve(true)
	metrics.RecordTypeRegistered()
*/
package monitoring
