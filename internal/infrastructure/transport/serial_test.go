package transport

import (
	"runtime"
	"testing"
)

func TestIsSerialPathAllowed(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("allowlist cases below are the linux set")
	}

	allowed := []string{
		"/dev/ttyACM0", "/dev/ttyUSB3", "/dev/ttyS0", "/dev/ttyAMA1", "/dev/ttyMFD2",
	}
	for _, p := range allowed {
		if !IsSerialPathAllowed(p) {
			t.Errorf("%q should be allowed", p)
		}
	}

	denied := []string{
		"/dev/ttyACM", "/dev/ttyacm0", "/dev/ttyACM0x", "/dev/sda",
		"/tmp/ttyACM0", "/dev/ttyUSB0/../sda", "COM1", "",
	}
	for _, p := range denied {
		if IsSerialPathAllowed(p) {
			t.Errorf("%q should be rejected", p)
		}
	}
}

func TestNewSerialTransport_RejectsDisallowedPath(t *testing.T) {
	if _, err := NewSerialTransport("/tmp/not-a-tty", 115200); err == nil {
		t.Fatal("expected path-allowlist rejection")
	}
}

func TestMockTransport_FrameShape(t *testing.T) {
	m := NewMockTransport()
	m.Respond("gpio_write", map[string]interface{}{"pin": 25})

	if _, err := m.Send("gpio_write", map[string]interface{}{"pin": 25, "value": 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frames := m.SentFrames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	want := `{"cmd":"gpio_write","params":{"pin":25,"value":1}}` + "\n"
	if frames[0] != want {
		t.Fatalf("frame = %q, want %q", frames[0], want)
	}
}

func TestMockTransport_DisconnectedFailsSend(t *testing.T) {
	m := NewMockTransport()
	m.SetConnected(false)
	if m.IsConnected() {
		t.Fatal("IsConnected should report false")
	}
	if _, err := m.Send("ping", nil); err == nil {
		t.Fatal("expected error from disconnected transport")
	}
}
