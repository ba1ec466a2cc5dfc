package ports

import "github.com/aretw0/crosschain/pkg/domain"

// ChainResolver resolves chain IDs. The registry is the canonical implementation.
type ChainResolver interface {
	// Get returns the chain registered under chainID, or domain.ErrUnknownChain.
	Get(chainID string) (domain.Chain, error)

	// Contains reports whether chainID is registered.
	Contains(chainID string) bool
}
