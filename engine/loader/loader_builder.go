package loader

import "github.com/Carmen-Shannon/oxy-deferred/common"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger sets the logger load summaries and warnings are written to.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger to a loader
func WithLogger(logger common.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPowerOfTwoTextures rescales every decoded material map so both sides
// are powers of two.
func WithPowerOfTwoTextures(enabled bool) LoaderBuilderOption {
	return func(l *loader) {
		l.powerOfTwo = enabled
	}
}

// WithModel pre-populates the cache, for procedurally built models.
//
// Parameters:
//   - m: the model, cached under m.Name
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model to a loader
func WithModel(m *Model) LoaderBuilderOption {
	return func(l *loader) {
		if m != nil {
			l.models[m.Name] = m
		}
	}
}
