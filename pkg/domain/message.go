package domain

import "maps"

// Message is the envelope routed between chains.
// It is transient: it only exists for the duration of routing, or while it waits in a mailbox.
// The JSON form doubles as the request envelope for cross-process transports.
type Message struct {
	// Type selects the handler on the destination chain.
	Type string `json:"type" mapstructure:"type"`

	// Source is the sender address. Empty for messages injected by the host.
	Source Address `json:"source" mapstructure:"source"`

	// Destination is the target chain ID.
	Destination string `json:"destination_chain_id" mapstructure:"destination_chain_id"`

	// Payload is opaque to the router; handlers decode it (see DecodePayload).
	Payload any `json:"payload,omitempty" mapstructure:"payload"`

	// CorrelationID matches requests with responses. The router fills it when empty.
	CorrelationID string `json:"correlation_id,omitempty" mapstructure:"correlation_id"`

	// Hops counts the routes this call chain has already taken.
	Hops int `json:"hops,omitempty" mapstructure:"hops"`

	// Trail lists the chain IDs visited by this call chain, in order.
	Trail []string `json:"trail,omitempty" mapstructure:"trail"`

	// Metadata carries string annotations (e.g. origin).
	Metadata map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// Clone returns a copy that shares no slices or maps with m.
// The payload itself is shared; it is treated as read-only by the router.
func (m Message) Clone() Message {
	c := m
	if m.Trail != nil {
		c.Trail = append([]string(nil), m.Trail...)
	}
	if m.Metadata != nil {
		c.Metadata = maps.Clone(m.Metadata)
	}
	return c
}
