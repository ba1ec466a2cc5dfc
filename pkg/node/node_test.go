package node_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/node"
	"github.com/aretw0/crosschain/pkg/registry"
	"github.com/aretw0/crosschain/pkg/router"
	"github.com/aretw0/crosschain/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg    *registry.Registry
	router *router.Router
	state  *state.Manager
}

func newFixture(t *testing.T, ids ...string) fixture {
	t.Helper()
	reg := registry.NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Register(id, domain.ChainFunc(func(ctx context.Context, input any) (any, error) {
			return input, nil
		})))
	}
	return fixture{reg: reg, router: router.New(reg), state: state.NewManager()}
}

func double(ctx context.Context, input any) (any, error) {
	return input.(int) * 2, nil
}

func TestNode_Lifecycle(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()

	var transitions []string
	n := node.New("A", "n1", double,
		node.WithRouter(f.router),
		node.WithHooks(domain.LifecycleHooks{
			OnNodeStatus: func(ctx context.Context, e *domain.NodeEvent) {
				transitions = append(transitions, string(e.From)+"->"+string(e.To))
			},
		}),
	)
	assert.Equal(t, domain.NodeCreated, n.Status())
	assert.Equal(t, "A/n1", n.Address().String())

	require.NoError(t, n.Attach(ctx))
	assert.Equal(t, domain.NodeActive, n.Status())

	n.Detach(ctx)
	assert.Equal(t, domain.NodeCreated, n.Status())

	assert.Equal(t, []string{"created->attached", "attached->active", "active->created"}, transitions)
}

func TestNode_AttachWithoutRouterStaysAttached(t *testing.T) {
	f := newFixture(t, "A")
	n := node.New("A", "n1", double, node.WithResolver(f.reg))

	require.NoError(t, n.Attach(context.Background()))
	assert.Equal(t, domain.NodeAttached, n.Status())

	_, err := n.ExecuteLocal(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNodeNotAttached)
}

func TestNode_AttachUnknownChain(t *testing.T) {
	f := newFixture(t, "A")
	n := node.New("Z", "n1", double, node.WithRouter(f.router))

	err := n.Attach(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnknownChain)
	assert.Equal(t, domain.NodeCreated, n.Status())

	orphan := node.New("A", "n1", double)
	assert.ErrorIs(t, orphan.Attach(context.Background()), domain.ErrUnknownChain)
}

func TestNode_OperationsRequireActive(t *testing.T) {
	f := newFixture(t, "A", "B")
	n := node.New("A", "n1", double, node.WithRouter(f.router))
	ctx := context.Background()

	_, err := n.ExecuteLocal(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNodeNotAttached)

	res := n.CallRemote(ctx, "B", domain.Message{Type: "ping"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrNodeNotAttached)

	results := n.Broadcast(ctx, domain.Message{Type: "ping"}, []string{"A", "B"})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results["B"].Err, domain.ErrNodeNotAttached)

	assert.ErrorIs(t, n.Send(ctx, "B", domain.Message{Type: "ping"}), domain.ErrNodeNotAttached)

	_, err = n.Inbox("ping")
	assert.ErrorIs(t, err, domain.ErrNodeNotAttached)
}

func TestNode_DeregisteredChainDeactivates(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	f.router.RegisterHandler("B", "ping", func(ctx context.Context, msg domain.Message) (any, error) {
		return "pong", nil
	})

	var transitions []string
	n := node.New("A", "n1", double,
		node.WithRouter(f.router),
		node.WithHooks(domain.LifecycleHooks{
			OnNodeStatus: func(ctx context.Context, e *domain.NodeEvent) {
				transitions = append(transitions, string(e.From)+"->"+string(e.To))
			},
		}),
	)
	require.NoError(t, n.Attach(ctx))
	require.True(t, n.CallRemote(ctx, "B", domain.Message{Type: "ping"}).Success)

	require.NoError(t, f.reg.Deregister("A"))
	assert.Equal(t, domain.NodeCreated, n.Status())

	res := n.CallRemote(ctx, "B", domain.Message{Type: "ping"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrNodeNotAttached)

	results := n.Broadcast(ctx, domain.Message{Type: "ping"}, []string{"B"})
	assert.ErrorIs(t, results["B"].Err, domain.ErrNodeNotAttached)
	assert.ErrorIs(t, n.Send(ctx, "B", domain.Message{Type: "ping"}), domain.ErrNodeNotAttached)

	_, err := n.ExecuteLocal(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNodeNotAttached)

	assert.Equal(t, []string{"created->attached", "attached->active", "active->created"}, transitions)
}

func TestNode_AttachWithoutLogic(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	n := node.New("A", "n1", nil, node.WithRouter(f.router))

	assert.ErrorIs(t, n.Attach(ctx), domain.ErrNoHandler)
	assert.Equal(t, domain.NodeCreated, n.Status())

	_, err := n.ExecuteLocal(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNodeNotAttached)
}

func TestNode_ExecuteLocal(t *testing.T) {
	f := newFixture(t, "A")
	boom := errors.New("boom")
	ctx := context.Background()

	n := node.New("A", "n1", double, node.WithRouter(f.router))
	require.NoError(t, n.Attach(ctx))

	out, err := n.ExecuteLocal(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	failing := node.New("A", "n2", func(ctx context.Context, input any) (any, error) {
		return nil, boom
	}, node.WithRouter(f.router))
	require.NoError(t, failing.Attach(ctx))

	_, err = failing.ExecuteLocal(ctx, 1)
	assert.Same(t, boom, err, "local errors are returned unmodified")
}

func TestNode_CallRemote(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()

	var got domain.Message
	f.router.RegisterHandler("B", "ping", func(ctx context.Context, msg domain.Message) (any, error) {
		got = msg
		return "pong", nil
	})

	a := node.New("A", "n1", double, node.WithRouter(f.router))
	require.NoError(t, a.Attach(ctx))

	res := a.CallRemote(ctx, "B", domain.Message{Type: "ping", Payload: map[string]any{"n": 1}})
	require.True(t, res.Success, "call failed: %v", res.Err)
	assert.Equal(t, "pong", res.Value)
	assert.Equal(t, domain.Address{ChainID: "A", NodeID: "n1"}, got.Source)
	assert.Equal(t, "B", got.Destination)

	res = a.CallRemote(ctx, "C", domain.Message{Type: "ping"})
	assert.ErrorIs(t, res.Err, domain.ErrUnknownChain)
}

func TestNode_CallRemoteCycle(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()

	a := node.New("A", "n1", double, node.WithRouter(f.router))
	b := node.New("B", "n1", double, node.WithRouter(f.router))
	require.NoError(t, a.Attach(ctx))
	require.NoError(t, b.Attach(ctx))

	f.router.RegisterHandler("A", "ping", func(ctx context.Context, msg domain.Message) (any, error) {
		res := a.CallRemote(ctx, "B", domain.Message{Type: "ping"})
		return res.Value, res.Err
	})
	f.router.RegisterHandler("B", "ping", func(ctx context.Context, msg domain.Message) (any, error) {
		res := b.CallRemote(ctx, "A", domain.Message{Type: "ping"})
		return res.Value, res.Err
	})

	res := a.CallRemote(ctx, "B", domain.Message{Type: "ping"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrCycleDetected)
}

func TestNode_BroadcastAndSend(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()

	handler := func(ctx context.Context, msg domain.Message) (any, error) {
		return msg.Source.String(), nil
	}
	f.router.RegisterHandler("B", "announce", handler)
	f.router.RegisterHandler("C", "announce", handler)

	a := node.New("A", "hub", double, node.WithRouter(f.router))
	c := node.New("C", "worker", double, node.WithRouter(f.router))
	require.NoError(t, a.Attach(ctx))
	require.NoError(t, c.Attach(ctx))

	results := a.Broadcast(ctx, domain.Message{Type: "announce"}, []string{"B", "C"})
	assert.Equal(t, "A/hub", results["B"].Value)
	assert.Equal(t, "A/hub", results["C"].Value)

	require.NoError(t, a.Send(ctx, "C", domain.Message{Type: "task", Payload: "job-1"}))
	inbox, err := c.Inbox("task")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "job-1", inbox[0].Payload)
	assert.Equal(t, "A/hub", inbox[0].Source.String())
}

func TestNode_SharedState(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()

	a := node.New("A", "n1", double, node.WithRouter(f.router), node.WithSharedState(f.state))
	b := node.New("B", "n1", double, node.WithRouter(f.router), node.WithSharedState(f.state))
	assert.Same(t, a.Shared(), b.Shared())
	assert.Nil(t, node.New("A", "n2", double).Shared())

	var observed any
	b.Shared().Subscribe("research_results", func(c state.Change) { observed = c.New })

	require.NoError(t, a.Shared().Set(ctx, "research_results", "ready"))
	assert.Equal(t, "ready", observed)
}
