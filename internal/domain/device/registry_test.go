package device

import (
	"fmt"
	"strings"
	"testing"
)

// fakeTransport is a minimal scripted Transport for registry tests.
type fakeTransport struct {
	connected bool
	pingErr   error
	caps      map[string]interface{}
}

func (f *fakeTransport) Send(cmd string, params map[string]interface{}) (map[string]interface{}, error) {
	if cmd == "capabilities" {
		return f.caps, nil
	}
	return map[string]interface{}{}, nil
}
func (f *fakeTransport) Ping() error       { return f.pingErr }
func (f *fakeTransport) Kind() string      { return "mock" }
func (f *fakeTransport) IsConnected() bool { return f.connected }

func TestAliasPrefix(t *testing.T) {
	cases := map[string]string{
		"pico-w":        "pico",
		"Pico":          "pico",
		"arduino-uno":   "arduino",
		"esp32-s3":      "esp",
		"nucleo-f401":   "nucleo",
		"stm32-disco":   "nucleo",
		"rpi-zero":      "rpi",
		"raspberry-pi4": "rpi",
		"frobnicator":   "device",
		"":              "device",
	}
	for board, want := range cases {
		if got := AliasPrefix(board); got != want {
			t.Errorf("AliasPrefix(%q) = %q, want %q", board, got, want)
		}
	}
}

func TestRegister_MonotonicSuffixPerPrefix(t *testing.T) {
	r := New()
	if a := r.Register(Registration{BoardName: "pico-w"}); a != "pico0" {
		t.Fatalf("first pico alias = %q, want pico0", a)
	}
	if a := r.Register(Registration{BoardName: "pico-2"}); a != "pico1" {
		t.Fatalf("second pico alias = %q, want pico1", a)
	}
	if a := r.Register(Registration{BoardName: "arduino-uno"}); a != "arduino0" {
		t.Fatalf("first arduino alias = %q, want arduino0", a)
	}
}

func TestRegister_DuplicatePathSuppressed(t *testing.T) {
	r := New()
	a1 := r.Register(Registration{BoardName: "pico-w", DevicePath: "/dev/ttyACM0"})
	a2 := r.Register(Registration{BoardName: "pico-w", DevicePath: "/dev/ttyACM0"})
	if a1 != a2 {
		t.Fatalf("same path should return the existing alias: %q vs %q", a1, a2)
	}
	if len(r.All()) != 1 {
		t.Fatalf("expected 1 device, got %d", len(r.All()))
	}
}

func TestKindForVID(t *testing.T) {
	if KindForVID(0x2e8a) != KindPico {
		t.Error("Raspberry Pi VID should map to pico")
	}
	if KindForVID(0x2341) != KindArduino {
		t.Error("Arduino VID should map to arduino")
	}
	if KindForVID(0xffff) != KindGeneric {
		t.Error("unknown VID should map to generic")
	}
}

func TestContext_RequiresTransport(t *testing.T) {
	r := New()
	alias := r.Register(Registration{BoardName: "pico-w"})

	if _, ok := r.Context(alias); ok {
		t.Fatal("registration alone should not make a device visible to dispatch")
	}
	if _, ok := r.Context("nope"); ok {
		t.Fatal("unknown alias should have no context")
	}

	if err := r.AttachTransport(alias, &fakeTransport{connected: true}, Capabilities{GPIO: true}); err != nil {
		t.Fatalf("AttachTransport: %v", err)
	}
	ctx, ok := r.Context(alias)
	if !ok || ctx.Alias != alias || !ctx.Caps.GPIO {
		t.Fatalf("unexpected context: %+v ok=%v", ctx, ok)
	}
}

func TestAttachTransport_UnknownAlias(t *testing.T) {
	r := New()
	if err := r.AttachTransport("ghost0", &fakeTransport{}, Capabilities{}); err == nil {
		t.Fatal("expected error for unknown alias")
	}
}

func TestResolveGPIODevice_AutoSelectUnique(t *testing.T) {
	r := New()
	alias := r.Register(Registration{BoardName: "pico-w"})
	_ = r.AttachTransport(alias, &fakeTransport{connected: true}, Capabilities{GPIO: true})

	ctx, err := r.ResolveGPIODevice("")
	if err != nil {
		t.Fatalf("ResolveGPIODevice: %v", err)
	}
	if ctx.Alias != alias {
		t.Fatalf("resolved %q, want %q", ctx.Alias, alias)
	}
}

func TestResolveGPIODevice_AmbiguousListsAliases(t *testing.T) {
	r := New()
	a0 := r.Register(Registration{BoardName: "pico-w"})
	a1 := r.Register(Registration{BoardName: "pico-2"})
	_ = r.AttachTransport(a0, &fakeTransport{connected: true}, Capabilities{GPIO: true})
	_ = r.AttachTransport(a1, &fakeTransport{connected: true}, Capabilities{GPIO: true})

	_, err := r.ResolveGPIODevice("")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	if !strings.Contains(err.Error(), a0) || !strings.Contains(err.Error(), a1) {
		t.Fatalf("error should list both candidates, got %q", err)
	}
}

func TestResolveGPIODevice_NoCapability(t *testing.T) {
	r := New()
	alias := r.Register(Registration{BoardName: "nucleo-f401"})
	_ = r.AttachTransport(alias, &fakeTransport{connected: true}, Capabilities{UART: true})

	if _, err := r.ResolveGPIODevice(alias); err == nil {
		t.Fatal("expected error for device without GPIO capability")
	}
	if _, err := r.ResolveGPIODevice(""); err == nil {
		t.Fatal("expected error when no GPIO-capable device exists")
	}
}

func TestPromptSummary(t *testing.T) {
	r := New()
	if got := r.PromptSummary(); got != NoHardwareDevicesSummary {
		t.Fatalf("empty registry summary = %q", got)
	}

	connected := r.Register(Registration{BoardName: "pico-w", Architecture: "arm"})
	_ = r.AttachTransport(connected, &fakeTransport{connected: true}, Capabilities{GPIO: true})
	r.Register(Registration{BoardName: "arduino-uno"})

	summary := r.PromptSummary()
	if !strings.Contains(summary, "pico0 — pico-w (arm) [connected]") {
		t.Errorf("missing connected line: %q", summary)
	}
	if !strings.Contains(summary, "arduino0 — arduino-uno (unknown arch) [no transport]") {
		t.Errorf("missing no-transport line: %q", summary)
	}
	// Deterministic: alias-sorted, so arduino0 precedes pico0.
	if strings.Index(summary, "arduino0") > strings.Index(summary, "pico0") {
		t.Errorf("summary not alias-sorted: %q", summary)
	}
}

func TestReconnect_SwapsTransportOnlyOnPingSuccess(t *testing.T) {
	r := New()
	alias := r.Register(Registration{BoardName: "pico-w", DevicePath: "/dev/ttyACM0"})
	_ = r.AttachTransport(alias, &fakeTransport{connected: true}, Capabilities{GPIO: true})

	// Failing ping: transport stays dropped, error surfaces.
	r.SetDialer(func(path string) (Transport, error) {
		return &fakeTransport{connected: true, pingErr: fmt.Errorf("no responder")}, nil
	})
	if err := r.Reconnect(alias, ""); err == nil {
		t.Fatal("expected reconnect failure on ping error")
	}
	if _, ok := r.Context(alias); ok {
		t.Fatal("failed reconnect should leave the device without a transport")
	}

	// Successful ping: transport swapped, capabilities refreshed from device.
	r.SetDialer(func(path string) (Transport, error) {
		return &fakeTransport{connected: true, caps: map[string]interface{}{"gpio": true, "adc": true}}, nil
	})
	if err := r.Reconnect(alias, "/dev/ttyACM1"); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	ctx, ok := r.Context(alias)
	if !ok {
		t.Fatal("device should be visible after reconnect")
	}
	if !ctx.Caps.GPIO || !ctx.Caps.ADC {
		t.Fatalf("capabilities not refreshed: %+v", ctx.Caps)
	}
}

func TestReconnect_UnknownAlias(t *testing.T) {
	r := New()
	if err := r.Reconnect("ghost0", ""); err == nil {
		t.Fatal("expected error for unknown alias")
	}
}
