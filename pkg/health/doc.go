/*
Package health tracks chain liveness.

A HeartbeatManager records when each chain was last seen and decides whether
it is alive within its ping interval. A Monitor combines that heartbeat with an
optional Prober to classify one chain as healthy, degraded or unhealthy, and a
Service aggregates monitors into a dashboard.
*/
package health
