package shader

import (
	"fmt"
	"strings"
)

// Permutation is one pre-processed variant of a shader source, identified by the
// source name and the compiler options it was built with.
type Permutation struct {
	// Key uniquely identifies the variant, e.g. "shading[SHADOW_MAPPING,MAX_LIGHTS 8]".
	Key string

	// Source is the processed WGSL ready for compilation.
	Source string

	// Options are the compiler options the variant was built with.
	Options []string
}

// NewPermutation pre-processes source with options.
//
// Parameters:
//   - pp: the pre-processor
//   - name: the source name used in the key and in errors
//   - source: the annotated WGSL source
//   - options: the compiler options
//
// Returns:
//   - Permutation: the processed variant
//   - error: an error if pre-processing fails
func NewPermutation(pp PreProcessor, name, source string, options []string) (Permutation, error) {
	processed, err := pp.Process(source, options)
	if err != nil {
		return Permutation{}, fmt.Errorf("shader %s: %w", name, err)
	}
	return Permutation{
		Key:     name + "[" + strings.Join(options, ",") + "]",
		Source:  processed,
		Options: append([]string(nil), options...),
	}, nil
}
