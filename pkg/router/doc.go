/*
Package router delivers messages between registered chains.

Handlers are keyed by (chain ID, message type). Route resolves the destination
through a ports.ChainResolver, invokes the handler and reports the outcome as a
domain.RouteResult; it never returns an error. Broadcast fans a template out to
several chains with an independent copy per target.

Every route increments the message hop count and records the destination in
its trail. The count is also stored in the handler's context, so a handler that
routes again (directly or through a node) continues the same call chain. Once a
call chain exceeds the configured maximum, the route fails with
domain.ErrCycleDetected instead of recursing forever.
*/
package router
