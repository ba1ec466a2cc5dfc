package domain

import "errors"

// ErrDuplicateChain is returned when registering a chain ID that is already present.
var ErrDuplicateChain = errors.New("duplicate chain")

// ErrUnknownChain is returned when a chain ID cannot be resolved by the registry.
var ErrUnknownChain = errors.New("unknown chain")

// ErrInvalidChain is returned for empty chain IDs or nil chain instances.
var ErrInvalidChain = errors.New("invalid chain")

// ErrUnknownKey is returned when a shared state key does not exist.
var ErrUnknownKey = errors.New("unknown key")

// ErrNoHandler is returned when a chain has no handler for a message type.
var ErrNoHandler = errors.New("no handler")

// ErrNodeNotAttached is returned when a node is used before it is attached to a registered chain.
var ErrNodeNotAttached = errors.New("node not attached")

// ErrCycleDetected is returned when a call chain exceeds the configured hop limit.
var ErrCycleDetected = errors.New("cycle detected")

// ErrHandlerPanic wraps a panic recovered while invoking a handler.
var ErrHandlerPanic = errors.New("handler panic")
