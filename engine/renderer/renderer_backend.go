package renderer

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA)
// of multisampled render targets. WebGPU guarantees support for 1 (off) and 4; the deferred
// renderer maps any requested count above one to 4.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4
)

// SampleCountFor maps a requested multi-sampling level to a supported sample count.
//
// Parameters:
//   - requested: the requested sample count; zero and one disable MSAA
//
// Returns:
//   - MSAASampleCount: MSAAOff or MSAA4x
func SampleCountFor(requested int) MSAASampleCount {
	if requested > 1 {
		return MSAA4x
	}
	return MSAAOff
}

// FrameRenderSystem is a RenderSystem that owns a presentable surface. The
// frame loop brackets every frame with BeginFrame / EndFrame / Present.
type FrameRenderSystem interface {
	RenderSystem

	// BeginFrame acquires the next swapchain texture and opens the frame's command encoder.
	//
	// Returns:
	//   - error: an error if the swapchain texture could not be acquired
	BeginFrame() error

	// EndFrame ends the open render pass and submits the frame's commands.
	// Does not present the surface; call Present after EndFrame.
	EndFrame()

	// Present presents the surface to the display and releases the swapchain texture.
	Present()

	// Resize reconfigures the surface for a new back buffer size.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// SetPresentMode sets the present mode; it takes effect on the next Resize.
	SetPresentMode(mode PresentMode)

	// Release destroys every resource and the device.
	Release()
}
