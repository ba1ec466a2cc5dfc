/*
Package ports defines the driven ports (interfaces) of the crosschain framework.

These interfaces decouple the core components from external implementations,
allowing the shared state to live in memory or in Redis, and letting the router
and nodes resolve chains without depending on a concrete registry.

# Key Interfaces

  - StateBackend: Stores the shared key/value table (memory or Redis).
  - DistributedLocker: Provides per-key exclusion across processes.
  - ChainResolver: Resolves chain IDs to chains (implemented by the registry).
*/
package ports
