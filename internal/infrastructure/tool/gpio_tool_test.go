package tool

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/zeroclaw/gateway/internal/domain/device"
	"github.com/zeroclaw/gateway/internal/infrastructure/transport"
)

func newGPIORegistry(t *testing.T, boards ...string) (*device.Registry, []*transport.MockTransport) {
	t.Helper()
	r := device.New()
	var mocks []*transport.MockTransport
	for _, board := range boards {
		alias := r.Register(device.Registration{BoardName: board})
		mock := transport.NewMockTransport()
		if err := r.AttachTransport(alias, mock, device.Capabilities{GPIO: true}); err != nil {
			t.Fatalf("AttachTransport(%s): %v", alias, err)
		}
		mocks = append(mocks, mock)
	}
	return r, mocks
}

func TestGPIOWrite_RoundTrip(t *testing.T) {
	registry, mocks := newGPIORegistry(t, "pico-w")
	mocks[0].Respond("gpio_write", map[string]interface{}{"pin": 25, "value": 1, "state": "HIGH"})

	tool := NewGPIOWriteTool(registry, zap.NewNop())
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"device": "pico0", "pin": float64(25), "value": float64(1),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Output != "GPIO 25 set HIGH on pico0" {
		t.Fatalf("output = %q", res.Output)
	}

	frames := mocks[0].SentFrames()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
	if frames[0] != `{"cmd":"gpio_write","params":{"pin":25,"value":1}}`+"\n" {
		t.Fatalf("wire frame = %q", frames[0])
	}
}

func TestGPIORead_FormatsState(t *testing.T) {
	registry, mocks := newGPIORegistry(t, "pico-w")
	mocks[0].Respond("gpio_read", map[string]interface{}{"pin": 5, "value": float64(0), "state": "LOW"})

	tool := NewGPIOReadTool(registry, zap.NewNop())
	res, err := tool.Execute(context.Background(), map[string]interface{}{"pin": float64(5)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Output != "GPIO 5 is LOW (0) on pico0" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGPIORead_AmbiguousWithoutDeviceArg(t *testing.T) {
	registry, _ := newGPIORegistry(t, "pico-w", "pico-2")

	tool := NewGPIOReadTool(registry, zap.NewNop())
	res, err := tool.Execute(context.Background(), map[string]interface{}{"pin": float64(5)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when two GPIO-capable devices are connected")
	}
	if !strings.Contains(res.Error, "pico0") || !strings.Contains(res.Error, "pico1") {
		t.Fatalf("error should list both aliases, got %q", res.Error)
	}
}

func TestGPIOWrite_ValidatesArguments(t *testing.T) {
	registry, _ := newGPIORegistry(t, "pico-w")
	tool := NewGPIOWriteTool(registry, zap.NewNop())

	res, _ := tool.Execute(context.Background(), map[string]interface{}{"value": float64(1)})
	if res.Success || res.Error != "missing required parameter: pin" {
		t.Fatalf("missing pin: %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]interface{}{"pin": float64(25)})
	if res.Success || res.Error != "missing required parameter: value" {
		t.Fatalf("missing value: %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]interface{}{"pin": float64(25), "value": float64(2)})
	if res.Success || !strings.Contains(res.Error, "0 or 1") {
		t.Fatalf("out-of-range value: %+v", res)
	}
}

func TestGPIOWrite_TransportErrorSurfacesAsFailure(t *testing.T) {
	registry, mocks := newGPIORegistry(t, "pico-w")
	mocks[0].SetConnected(false)

	tool := NewGPIOWriteTool(registry, zap.NewNop())
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"pin": float64(25), "value": float64(1),
	})
	if err != nil {
		t.Fatalf("Execute must not return a Go error: %v", err)
	}
	if res.Success || !strings.HasPrefix(res.Error, "transport error:") {
		t.Fatalf("unexpected result: %+v", res)
	}
}
