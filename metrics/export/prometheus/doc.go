// Package prometheus exposes rideAuth controller metrics to Prometheus.
//
// [PrometheusExporter] can be mounted directly through [PrometheusExporter.Handler]
// or registered as a collector on a caller-owned registry and served with
// promhttp. Counter names are prefixed rideauth_ and end in _total; the single
// histogram is rideauth_backend_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate controller state.
package prometheus
