package router

import (
	"context"
	"slices"
)

type hopsKey struct{}

type hopState struct {
	hops   int
	trail  []string
	origin string
}

func withHops(ctx context.Context, s hopState) context.Context {
	return context.WithValue(ctx, hopsKey{}, s)
}

func originFromContext(ctx context.Context) string {
	s, _ := ctx.Value(hopsKey{}).(hopState)
	return s.origin
}

// HopsFromContext returns the hop count of the call chain running in ctx.
// It is zero outside of a handler.
func HopsFromContext(ctx context.Context) int {
	s, _ := ctx.Value(hopsKey{}).(hopState)
	return s.hops
}

// TrailFromContext returns a copy of the chain IDs visited by the call chain running in ctx.
func TrailFromContext(ctx context.Context) []string {
	s, _ := ctx.Value(hopsKey{}).(hopState)
	return slices.Clone(s.trail)
}
