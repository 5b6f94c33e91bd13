// Package health converts component health reports into a three-state model
// (healthy, degraded, unhealthy) and serves the aggregate on /health.
//
// A pipeline is healthy while connected and writing, degraded when it works
// but has recorded errors, and unhealthy when it is not running or cannot
// reach its device. The Monitor aggregates every registered pipeline:
//
//	monitor := health.NewMonitor("readport")
//	monitor.Add(pipeline)
//	server := metric.NewServer(9090, "/metrics", registry, monitor)
//
// Error text is sanitized before it is served: device addresses, ports, file
// paths and credentials are masked.
package health
