// Package metric provides the Prometheus metrics registry shared by all
// collector pipelines and the HTTP server that exposes it.
//
// A single MetricsRegistry is created by the CLI and handed to every pipeline
// through its Deps. Components register their own collectors under a service
// name (the device name), which keeps per-device metrics separate and lets a
// stopped pipeline remove them with UnregisterService. A nil registry means
// metrics are disabled; every component checks for that.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, healthHandler)
//	if err := server.Start(errc); err != nil {
//	    return err
//	}
//	defer server.Stop(5 * time.Second)
//
// Core metrics cover the process as a whole: pipeline status, last health
// check, classified error counts and build info. All names carry the
// "readport" namespace.
package metric
