package domain

import (
	"encoding/json"
	"time"
)

// RouteResult captures the outcome of delivering a message to one chain.
// Routing never raises: resolution and handler failures are reported here.
type RouteResult struct {
	ChainID       string
	Success       bool
	Value         any
	Err           error
	CorrelationID string
	Duration      time.Duration
}

// Failed builds an unsuccessful result.
func Failed(chainID string, err error) RouteResult {
	return RouteResult{ChainID: chainID, Err: err}
}

type routeResultJSON struct {
	ChainID       string  `json:"chain_id"`
	Success       bool    `json:"success"`
	Value         any     `json:"value,omitempty"`
	Error         string  `json:"error,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	DurationMs    float64 `json:"duration_ms"`
}

// MarshalJSON renders Err as a string so results can cross process boundaries.
func (r RouteResult) MarshalJSON() ([]byte, error) {
	out := routeResultJSON{
		ChainID:       r.ChainID,
		Success:       r.Success,
		Value:         r.Value,
		CorrelationID: r.CorrelationID,
		DurationMs:    float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
