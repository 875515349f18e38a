package window

import "github.com/Carmen-Shannon/oxy-deferred/common"

// WindowBuilderOption is a functional option for configuring a window before it opens.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial window size. Invalid sizes are ignored.
//
// Parameters:
//   - size: the requested client area in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(size common.Size2D) WindowBuilderOption {
	return func(w *engineWindow) {
		if size.Valid() {
			w.size = size
		}
	}
}

// WithSizeLimits bounds interactive resizing. A zero max leaves the maximum open.
func WithSizeLimits(minSize, maxSize common.Size2D) WindowBuilderOption {
	return func(w *engineWindow) {
		if minSize.Valid() {
			w.minSize = minSize
		}
		w.maxSize = maxSize
	}
}

// WithLogger sets the logger for window lifecycle messages.
func WithLogger(logger common.Logger) WindowBuilderOption {
	return func(w *engineWindow) {
		if logger != nil {
			w.logger = logger
		}
	}
}
