// Package embedded provides files compiled into the consensus binary.
package embedded

import (
	_ "embed"
)

// SourcesExample is the annotated sources file written by `consensus init`.
//
//go:embed sources.example.yaml
var SourcesExample []byte
