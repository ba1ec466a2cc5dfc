package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodePayload decodes a loosely typed payload (usually map[string]any coming
// from JSON or another chain) into out, which must be a pointer.
// Field names follow the "json" struct tags so wire and Go shapes stay aligned.
func DecodePayload(payload any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build payload decoder: %w", err)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
