// Package canonical freezes a ready compilation into the versioned artifact
// stored in order metadata, and reads it back for downstream automation.
package canonical

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"concierge/internal/compiler"
)

const (
	CompilerVersion = "canonical-v1"

	// MetadataKey is the order metadata field that holds the artifact.
	MetadataKey = "canonicalOrder"
)

var ErrNotReady = errors.New("compilation is not ready to execute")

// ReadyToExecute is the only status an artifact can carry. It has no other
// value, so a non-ready status cannot be represented.
type ReadyToExecute struct{}

func (ReadyToExecute) String() string { return string(compiler.StatusReadyToExecute) }

func (ReadyToExecute) MarshalJSON() ([]byte, error) {
	return []byte(`"` + string(compiler.StatusReadyToExecute) + `"`), nil
}

func (*ReadyToExecute) UnmarshalJSON(data []byte) error {
	if !bytes.Equal(bytes.TrimSpace(data), []byte(`"`+string(compiler.StatusReadyToExecute)+`"`)) {
		return fmt.Errorf("artifact status must be %q, got %s", compiler.StatusReadyToExecute, data)
	}
	return nil
}

// Artifact is the frozen output of a successful compilation. It is created
// once and never mutated.
type Artifact struct {
	CompilerVersion string                       `json:"compilerVersion"`
	CompiledAt      string                       `json:"compiledAt"`
	Status          ReadyToExecute               `json:"status"`
	Subtotal        compiler.Money               `json:"subtotal"`
	ItemCount       int                          `json:"itemCount"`
	Items           []compiler.CompiledOrderItem `json:"items"`
}

// BuildCanonicalOrderArtifact stamps items and subtotal with the current
// compiler version and time.
func BuildCanonicalOrderArtifact(items []compiler.CompiledOrderItem, subtotal compiler.Money) Artifact {
	return BuildAt(items, subtotal, time.Now())
}

// BuildAt is BuildCanonicalOrderArtifact with an explicit clock reading.
func BuildAt(items []compiler.CompiledOrderItem, subtotal compiler.Money, now time.Time) Artifact {
	copied := copyItems(items)
	return Artifact{
		CompilerVersion: CompilerVersion,
		CompiledAt:      now.UTC().Format(time.RFC3339Nano),
		Subtotal:        subtotal,
		ItemCount:       len(copied),
		Items:           copied,
	}
}

// FromResult freezes res. Only a ready_to_execute result can be frozen.
func FromResult(res compiler.CompiledOrderResult, now time.Time) (Artifact, error) {
	if res.Status != compiler.StatusReadyToExecute || len(res.Issues) > 0 {
		return Artifact{}, fmt.Errorf("%w: status %s with %d issues", ErrNotReady, res.Status, len(res.Issues))
	}
	return BuildAt(res.Items, res.Subtotal, now), nil
}

// WithArtifact returns a copy of metadata with a stored under MetadataKey.
func WithArtifact(metadata map[string]any, a Artifact) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[MetadataKey] = a
	return out
}

func copyItems(items []compiler.CompiledOrderItem) []compiler.CompiledOrderItem {
	out := make([]compiler.CompiledOrderItem, len(items))
	for i, it := range items {
		it.ModifierDetails = copyDetails(it.ModifierDetails)
		out[i] = it
	}
	return out
}

func copyDetails(details []compiler.ModifierDetail) []compiler.ModifierDetail {
	out := make([]compiler.ModifierDetail, len(details))
	for i, d := range details {
		opts := make([]compiler.ModifierOptionDetail, len(d.Options))
		copy(opts, d.Options)
		d.Options = opts
		out[i] = d
	}
	return out
}
