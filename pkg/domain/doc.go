/*
Package domain contains the core domain models of the crosschain framework.

It defines the entities exchanged between chains, nodes and the router. This
package is kept pure and free of I/O or persistence concerns, following
Hexagonal Architecture principles: registries, routers and stores live in
their own packages and speak in terms of these types.

# Key Entities

  - Chain: An independently identified execution context.
  - Address: The (chain, node) pair that identifies a node.
  - Message: The envelope routed between chains, carrying the hop counter.
  - RouteResult: The captured outcome of a single delivery.
  - LifecycleHooks: Observability callbacks fired by the core components.
*/
package domain
