package window

import (
	"runtime"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window owns the platform window the renderer presents into and turns its
// events into callbacks.
type Window interface {
	// SetResizeCallback sets the function called with the new framebuffer size
	// when the window is resized. Minimized windows report no resize.
	SetResizeCallback(callback func(size common.Size2D))

	// SetKeyCallback sets the function called on key presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the key and true for a press or repeat
	SetKeyCallback(callback func(key common.Key, pressed bool))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetTitle replaces the title bar text.
	SetTitle(title string)

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the window, created
	// by the wgpuglfw bridge, or nil when the window is closed.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never opened
	Close() error

	// ProcessMessages polls window events until the window closes.
	// Must be called from the main thread.
	ProcessMessages()

	// Size returns the framebuffer size in pixels.
	Size() common.Size2D
}

type engineWindow struct {
	title   string
	size    common.Size2D
	minSize common.Size2D
	maxSize common.Size2D
	logger  common.Logger

	platform *glfwWindow

	onResize func(size common.Size2D)
	onKey    func(key common.Key, pressed bool)
	onScroll func(delta float32)
}

var _ Window = &engineWindow{}

// NewWindow opens a window with the specified options.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:   "oxy-deferred",
		size:    common.Size2D{Width: 1280, Height: 720},
		minSize: common.Size2D{Width: 320, Height: 240},
		logger:  common.NewNopLogger(),
	}
	for _, opt := range options {
		opt(w)
	}
	if err := openPlatformWindow(w); err != nil {
		return nil, err
	}
	w.logger.Infof("window: %q opened at %s", w.title, w.size)
	return w, nil
}

func (w *engineWindow) SetResizeCallback(callback func(size common.Size2D)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(key common.Key, pressed bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	if w.platform != nil {
		w.platform.setTitle(title)
	}
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) IsRunning() bool {
	return w.platform != nil && w.platform.running()
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return ErrNotOpen
	}
	w.platform.close()
	w.platform = nil
	w.logger.Debugf("window: %q closed", w.title)
	return nil
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		w.platform.poll()
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() common.Size2D {
	return w.size
}

// resized records a framebuffer size change and forwards it.
func (w *engineWindow) resized(size common.Size2D) {
	if !size.Valid() || size == w.size {
		return
	}
	w.size = size
	if w.onResize != nil {
		w.onResize(size)
	}
}
