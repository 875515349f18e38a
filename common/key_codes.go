package common

import "fmt"

// Key is a keyboard key. Values match GLFW key codes, which use ASCII for
// printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
type Key uint32

const (
	KeyUnknown Key = 0
	KeySpace   Key = 32

	Key0 Key = 48
	Key1 Key = 49
	Key2 Key = 50
	Key3 Key = 51
	Key4 Key = 52
	Key5 Key = 53
	Key6 Key = 54
	Key7 Key = 55
	Key8 Key = 56
	Key9 Key = 57

	KeyA Key = 65
	KeyB Key = 66
	KeyD Key = 68
	KeyG Key = 71
	KeyL Key = 76
	KeyN Key = 78
	KeyO Key = 79
	KeyP Key = 80
	KeyS Key = 83
	KeyT Key = 84
	KeyV Key = 86
	KeyW Key = 87

	KeyEscape Key = 256
	KeyRight  Key = 262
	KeyLeft   Key = 263
	KeyDown   Key = 264
	KeyUp     Key = 265
	KeyF1     Key = 290
)

// String returns the printable character of the key, or its code.
func (k Key) String() string {
	switch {
	case k == KeySpace:
		return "SPACE"
	case k == KeyEscape:
		return "ESC"
	case k >= KeyF1 && k < KeyF1+12:
		return fmt.Sprintf("F%d", k-KeyF1+1)
	case k > KeySpace && k < 127:
		return string(rune(k))
	}
	return fmt.Sprintf("KEY(%d)", uint32(k))
}
