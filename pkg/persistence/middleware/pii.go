package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/crosschain/pkg/ports"
)

// Mask replaces values whose map key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	base
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks, before storing, every map entry (at any depth) whose
// key matches one of the patterns. The caller's value is left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateBackend) ports.StateBackend {
		return &piiMiddleware{base: base{next}, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Store(ctx context.Context, key string, value any) error {
	if src, ok := value.(map[string]any); ok {
		cloned := deepCopyMap(src)
		maskMap(cloned, m.patterns)
		value = cloned
	}
	return m.StateBackend.Store(ctx, key, value)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
