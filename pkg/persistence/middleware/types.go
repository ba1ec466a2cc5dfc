// Package middleware decorates a StateBackend with at-rest transformations.
package middleware

import (
	"io"

	"github.com/aretw0/crosschain/pkg/ports"
)

// Middleware allows wrapping a StateBackend to add behavior.
type Middleware func(ports.StateBackend) ports.StateBackend

// Chain applies mws so that the first one is the outermost.
func Chain(backend ports.StateBackend, mws ...Middleware) ports.StateBackend {
	for i := len(mws) - 1; i >= 0; i-- {
		backend = mws[i](backend)
	}
	return backend
}

// base forwards everything, including Close, to the wrapped backend.
type base struct {
	ports.StateBackend
}

// Close closes the wrapped backend when it holds resources.
func (b base) Close() error {
	if c, ok := b.StateBackend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
