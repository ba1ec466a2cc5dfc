/*
Package crosschain lets independently identified chains talk to each other and share state inside one process.

A chain is any unit of work behind a string ID (an agent, a workflow, a service
facade). Chains are registered in a registry, receive messages through
handlers keyed by (chain, message type), and read and write a shared key/value
store that notifies subscribers synchronously on every change.

# Concept

The Mesh owns four components:

  - Registry: the source of truth for which chains exist.
  - State: the shared key/value table with per-key subscribers.
  - Router: resolves destinations and invokes handlers. Routing never panics or
    returns an error; every outcome is a domain.RouteResult.
  - Health: heartbeats and per-chain monitors aggregated into a dashboard.

Nodes are addressable participants of a chain. They run local logic and call
other chains through the router, with the hop count carried in the context so
that mutually recursive handlers terminate with domain.ErrCycleDetected.

# Usage

	mesh, err := crosschain.New()
	if err != nil {
		log.Fatal(err)
	}

	_ = mesh.RegisterChain("A", domain.ChainFunc(agentA))
	_ = mesh.RegisterChain("B", domain.ChainFunc(agentB))

	mesh.Handle("B", "ping", func(ctx context.Context, msg domain.Message) (any, error) {
		return "pong", nil
	})

	node, _ := mesh.NewNode(ctx, "A", "caller", localLogic)
	res := node.CallRemote(ctx, "B", domain.Message{Type: "ping"})
	fmt.Println(res.Success, res.Value) // true pong

Shared state can be moved to Redis (see pkg/adapters/redis) so that several
processes observe the same table, and the HTTP and MCP adapters expose a Mesh
to remote callers.
*/
package crosschain
