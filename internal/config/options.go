package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps every validation failure for stage options and
// configuration documents.
var ErrInvalidConfig = errors.New("invalid configuration")

// Common holds the options every stage carries regardless of algorithm.
type Common struct {
	IsActive              bool `json:"is_active"`
	AutoRunOnConfigChange bool `json:"auto_run_on_config_change"`
}

// DefaultCommon returns the options a freshly created stage starts with.
func DefaultCommon() Common {
	return Common{IsActive: true, AutoRunOnConfigChange: true}
}

// Base exposes the shared fields of an embedding options record.
func (c *Common) Base() *Common { return c }

// Options is implemented by every typed stage options record.
type Options interface {
	Base() *Common
	Validate() error
}

// Merge decodes raw onto a copy of current, so keys missing from raw keep
// their current values. Unknown keys are rejected. fresh must return a new
// zero record of the same concrete type as current.
func Merge(current Options, raw []byte, fresh func() Options) (Options, error) {
	next, err := Clone(current, fresh)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return next, nil
}

// Clone returns a deep copy of o by round-tripping it through JSON into a
// record produced by fresh.
func Clone(o Options, fresh func() Options) (Options, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	next := fresh()
	if err := json.Unmarshal(raw, next); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return next, nil
}

// ToMap renders options as a generic key/value mapping, as stored in a
// configuration document.
func ToMap(o Options) (map[string]any, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
