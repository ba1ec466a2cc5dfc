package domain

import "time"

const (
	// DefaultMaxHops bounds recursive cross-chain call chains.
	DefaultMaxHops = 16

	// DefaultPingInterval is the heartbeat window used when a chain does not declare one.
	DefaultPingInterval = 30 * time.Second
)

// MessageTypePing is the liveness probe message type.
const MessageTypePing = "ping"

// Metadata keys attached to routed messages.
const (
	// KeyOrigin records the chain that started a call chain.
	KeyOrigin = "origin"
)
