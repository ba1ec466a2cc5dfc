/*
Package observability exports crosschain activity as Prometheus metrics.

Metrics registers its collectors on an injected prometheus.Registerer and feeds
them through domain.LifecycleHooks, so any component that accepts hooks
(registry, router, state manager) can be observed without knowing about
Prometheus.
*/
package observability
