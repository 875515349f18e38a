package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWriterLogger("Deferred", false, &out, &errOut)

	l.Debugf("hidden %d", 1)
	assert.Empty(t, out.String())

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("shown %d", 2)
	l.Infof("ready")
	assert.Contains(t, out.String(), "[Deferred] DEBUG: shown 2")
	assert.Contains(t, out.String(), "[Deferred] INFO: ready")

	l.Warnf("slow")
	l.Errorf("failed: %v", "boom")
	assert.Contains(t, errOut.String(), "[Deferred] WARN: slow")
	assert.Contains(t, errOut.String(), "[Deferred] ERROR: failed: boom")
	assert.NotContains(t, out.String(), "WARN")
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.SetDebug(true)
	assert.False(t, l.DebugEnabled())
	assert.NotPanics(t, func() { l.Errorf("ignored %s", "x") })
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "B", KeyB.String())
	assert.Equal(t, "7", Key7.String())
	assert.Equal(t, "ESC", KeyEscape.String())
	assert.Equal(t, "F3", (KeyF1 + 2).String())
	assert.Equal(t, "KEY(262)", KeyRight.String())
}
