package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// ErrNotOpen is returned when closing a window that is not open.
var ErrNotOpen = errors.New("window is not open")

// glfwWindow holds the GLFW window state.
type glfwWindow struct {
	window *glfw.Window
	open   bool
}

// openPlatformWindow creates the GLFW window and routes its callbacks to w.
// GLFW requires the calling goroutine to stay on the main thread.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func openPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialize GLFW: %w", err)
	}

	// WebGPU brings its own graphics API, no OpenGL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.size.Width, w.size.Height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("create GLFW window: %w", err)
	}
	maxW, maxH := glfw.DontCare, glfw.DontCare
	if w.maxSize.Valid() {
		maxW, maxH = w.maxSize.Width, w.maxSize.Height
	}
	win.SetSizeLimits(w.minSize.Width, w.minSize.Height, maxW, maxH)

	gw := &glfwWindow{window: win, open: true}
	w.platform = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			return
		}
		if w.onKey != nil {
			w.onKey(common.Key(key), action != glfw.Release)
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})

	// The framebuffer size is in pixels and differs from the window size on
	// high-DPI displays; the surface and the G-Buffer follow the framebuffer.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(common.Size2D{Width: width, Height: height})
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.size = common.Size2D{Width: fbWidth, Height: fbHeight}
	return nil
}

// surfaceDescriptor bridges the GLFW window to a WebGPU surface.
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func (g *glfwWindow) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(g.window)
}

func (g *glfwWindow) running() bool {
	return g.open && !g.window.ShouldClose()
}

func (g *glfwWindow) setTitle(title string) {
	g.window.SetTitle(title)
}

func (g *glfwWindow) poll() {
	glfw.PollEvents()
}

func (g *glfwWindow) close() {
	g.open = false
	g.window.Destroy()
	glfw.Terminate()
}
