package domain

import "context"

// Chain is an independently identified execution context.
// The registry stores chains by ID and hands the same instance back on lookup.
type Chain interface {
	Invoke(ctx context.Context, input any) (any, error)
}

// ChainFunc adapts an ordinary function to the Chain interface.
type ChainFunc func(ctx context.Context, input any) (any, error)

// Invoke calls f(ctx, input).
func (f ChainFunc) Invoke(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// Address identifies a node inside a chain.
type Address struct {
	ChainID string `json:"chain_id" mapstructure:"chain_id"`
	NodeID  string `json:"node_id,omitempty" mapstructure:"node_id"`
}

// String renders the address as "chain/node" (or just "chain" for chain-level senders).
func (a Address) String() string {
	if a.NodeID == "" {
		return a.ChainID
	}
	return a.ChainID + "/" + a.NodeID
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a.ChainID == "" && a.NodeID == ""
}
