// Package metrics instruments the assembly pipeline with Prometheus
// collectors on a private registry.
package metrics
