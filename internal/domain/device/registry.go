// Package device implements the hardware device registry: aliasing,
// transport attachment, reconnect, and the resolve/prompt-summary operations
// the agent loop and GPIO tools depend on.
//
// Grounded on original_source/src/hardware/device.rs.
package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind distinguishes the board family of a registered device.
type Kind string

const (
	KindPico    Kind = "pico"
	KindArduino Kind = "arduino"
	KindEsp32   Kind = "esp32"
	KindNucleo  Kind = "nucleo"
	KindGeneric Kind = "generic"
)

// Runtime names the firmware environment running on a device.
type Runtime string

const (
	RuntimeMicroPython   Runtime = "micropython"
	RuntimeCircuitPython Runtime = "circuitpython"
	RuntimeArduino       Runtime = "arduino"
	RuntimeNucleus       Runtime = "nucleus"
	RuntimeLinux         Runtime = "linux"
)

// vidKinds maps known USB vendor IDs to a board family. A device on an
// unknown VID only gets registered after a successful ping handshake, as
// KindGeneric.
var vidKinds = map[uint16]Kind{
	0x2e8a: KindPico,    // Raspberry Pi
	0x2341: KindArduino, // Arduino SA
	0x2a03: KindArduino, // Arduino.org
	0x303a: KindEsp32,   // Espressif
	0x0483: KindNucleo,  // STMicroelectronics
}

// KindForVID derives a board family from a USB vendor ID; unknown VIDs map
// to KindGeneric.
func KindForVID(vid uint16) Kind {
	if k, ok := vidKinds[vid]; ok {
		return k
	}
	return KindGeneric
}

// Capabilities describes which peripheral functions a device advertises.
// All false until a transport attach populates them.
type Capabilities struct {
	GPIO bool
	I2C  bool
	SPI  bool
	SWD  bool
	UART bool
	ADC  bool
	PWM  bool
}

// CapabilitiesFromData parses the data object of a "capabilities" wire
// response into a Capabilities value; absent or non-boolean fields stay
// false.
func CapabilitiesFromData(data map[string]interface{}) Capabilities {
	flag := func(key string) bool {
		v, _ := data[key].(bool)
		return v
	}
	return Capabilities{
		GPIO: flag("gpio"),
		I2C:  flag("i2c"),
		SPI:  flag("spi"),
		SWD:  flag("swd"),
		UART: flag("uart"),
		ADC:  flag("adc"),
		PWM:  flag("pwm"),
	}
}

// Transport is the minimal interface a device's communication channel must
// satisfy. Implementations: serial, mock.
type Transport interface {
	// Send performs a single request/response round trip and returns the
	// response's data payload or an error.
	Send(cmd string, params map[string]interface{}) (map[string]interface{}, error)
	// Ping checks liveness with a short deadline, without mutating device
	// state.
	Ping() error
	// Kind names the transport implementation ("serial", "mock").
	Kind() string
	// IsConnected reports whether the transport currently holds a usable
	// connection. It must be cheap: PromptSummary calls it under the
	// registry lock.
	IsConnected() bool
}

// Device is one registered hardware peripheral.
type Device struct {
	Alias        string
	BoardName    string
	Kind         Kind
	Runtime      Runtime
	VID          uint16
	PID          uint16
	DevicePath   string
	Architecture string
	Firmware     string
	Caps         Capabilities

	transport Transport
}

// Context is an owned snapshot of a device plus its transport, safe to use
// after the registry lock has been released.
type Context struct {
	Alias     string
	BoardName string
	Caps      Capabilities
	Transport Transport
}

// NoHardwareDevicesSummary is returned by PromptSummary when the registry is
// empty, matching the original's NO_HW_DEVICES_SUMMARY constant.
const NoHardwareDevicesSummary = "No hardware devices connected."

// aliasPrefixes maps a board-name prefix (case-insensitive) to the alias
// stem used for that family. The first matching prefix wins; unmatched
// boards fall back to the generic "device" stem.
var aliasPrefixes = []struct {
	prefix string
	stem   string
}{
	{"pico", "pico"},
	{"arduino", "arduino"},
	{"esp", "esp"},
	{"nucleo", "nucleo"},
	{"stm32", "nucleo"},
	{"rpi", "rpi"},
	{"raspberry-pi", "rpi"},
}

// AliasPrefix derives the alias stem for a board name.
func AliasPrefix(boardName string) string {
	lower := strings.ToLower(boardName)
	for _, p := range aliasPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.stem
		}
	}
	return "device"
}

// Registration carries the optional attributes of a device being registered.
type Registration struct {
	BoardName    string
	VID          uint16
	PID          uint16
	DevicePath   string
	Architecture string
	Runtime      Runtime
	Firmware     string
}

// Registry holds all known devices, keyed by alias, with monotonic
// per-family counters for alias derivation. Writers (Register,
// AttachTransport, Reconnect) are exclusive; readers get owned snapshots so
// no transport call ever happens while the lock is held.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*Device
	order    []string
	counters map[string]int

	// dial builds a fresh transport for a device path; set by the wiring
	// layer so Reconnect can rebuild serial transports without the domain
	// depending on the serial implementation.
	dial func(path string) (Transport, error)
}

// New creates an empty device registry.
func New() *Registry {
	return &Registry{
		devices:  make(map[string]*Device),
		counters: make(map[string]int),
	}
}

// SetDialer installs the transport factory Reconnect uses.
func (r *Registry) SetDialer(dial func(path string) (Transport, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dial = dial
}

// Register adds a new device (without a transport yet) and returns its
// derived alias. Registering a second device on an already-registered
// non-empty path returns the existing alias instead of creating a
// duplicate entry.
func (r *Registry) Register(reg Registration) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.DevicePath != "" {
		for _, alias := range r.order {
			if r.devices[alias].DevicePath == reg.DevicePath {
				return alias
			}
		}
	}

	stem := AliasPrefix(reg.BoardName)
	n := r.counters[stem]
	r.counters[stem] = n + 1
	alias := fmt.Sprintf("%s%d", stem, n)

	kind := KindGeneric
	if reg.VID != 0 {
		kind = KindForVID(reg.VID)
	}

	r.devices[alias] = &Device{
		Alias:        alias,
		BoardName:    reg.BoardName,
		Kind:         kind,
		Runtime:      reg.Runtime,
		VID:          reg.VID,
		PID:          reg.PID,
		DevicePath:   reg.DevicePath,
		Architecture: reg.Architecture,
		Firmware:     reg.Firmware,
	}
	r.order = append(r.order, alias)
	return alias
}

// AttachTransport wires a live transport and capability set onto an
// already-registered alias.
func (r *Registry) AttachTransport(alias string, t Transport, caps Capabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[alias]
	if !ok {
		return fmt.Errorf("attach_transport: unknown alias %q", alias)
	}
	d.transport = t
	d.Caps = caps
	return nil
}

// Reconnect drops alias's current transport, dials a fresh one on newPath
// (or the device's recorded path when newPath is empty), and swaps it in
// only after a successful ping handshake, refreshing capabilities from the
// device. All I/O happens with the registry lock released.
func (r *Registry) Reconnect(alias, newPath string) error {
	r.mu.Lock()
	d, ok := r.devices[alias]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("reconnect: unknown alias %q", alias)
	}
	dial := r.dial
	path := newPath
	if path == "" {
		path = d.DevicePath
	}
	d.transport = nil
	r.mu.Unlock()

	if dial == nil {
		return fmt.Errorf("reconnect: no transport dialer configured")
	}
	if path == "" {
		return fmt.Errorf("reconnect: device %q has no device path", alias)
	}

	t, err := dial(path)
	if err != nil {
		return fmt.Errorf("reconnect %q: %w", alias, err)
	}
	if err := t.Ping(); err != nil {
		return fmt.Errorf("reconnect %q: ping handshake failed: %w", alias, err)
	}

	caps := Capabilities{}
	if data, err := t.Send("capabilities", nil); err == nil {
		caps = CapabilitiesFromData(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok = r.devices[alias]
	if !ok {
		return fmt.Errorf("reconnect: device %q disappeared", alias)
	}
	d.transport = t
	d.DevicePath = path
	d.Caps = caps
	return nil
}

// All returns a snapshot slice of every registered device, in registration
// order.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.order))
	for _, alias := range r.order {
		d := *r.devices[alias]
		out = append(out, &d)
	}
	return out
}

// Context returns an owned snapshot of alias's device and transport. It
// returns (nil, false) both for an unknown alias and for a registered
// device with no transport attached — registration alone does not make a
// device visible to tool dispatch.
//
// Callers MUST NOT hold the registry lock while using the returned
// transport: this method copies everything it returns before releasing the
// lock, precisely so the caller's subsequent transport call never happens
// while the lock is held.
func (r *Registry) Context(alias string) (*Context, bool) {
	r.mu.RLock()
	d, ok := r.devices[alias]
	if !ok || d.transport == nil {
		r.mu.RUnlock()
		return nil, false
	}
	ctx := &Context{
		Alias:     d.Alias,
		BoardName: d.BoardName,
		Caps:      d.Caps,
		Transport: d.transport,
	}
	r.mu.RUnlock()
	return ctx, true
}

// ResolveGPIODevice picks the device a GPIO tool call should target: the
// explicitly named alias if given and GPIO-capable, or — when no alias is
// given — the sole GPIO-capable device if there is exactly one, with a
// descriptive error in every other case.
func (r *Registry) ResolveGPIODevice(requestedAlias string) (*Context, error) {
	if requestedAlias != "" {
		ctx, ok := r.Context(requestedAlias)
		if !ok {
			return nil, fmt.Errorf("no device named %q is connected", requestedAlias)
		}
		if !ctx.Caps.GPIO {
			return nil, fmt.Errorf("device %q does not support GPIO", requestedAlias)
		}
		return ctx, nil
	}

	r.mu.RLock()
	var gpioAliases []string
	for _, alias := range r.order {
		if d := r.devices[alias]; d.transport != nil && d.Caps.GPIO {
			gpioAliases = append(gpioAliases, alias)
		}
	}
	r.mu.RUnlock()

	switch len(gpioAliases) {
	case 0:
		return nil, fmt.Errorf("no GPIO-capable device is connected")
	case 1:
		ctx, _ := r.Context(gpioAliases[0])
		return ctx, nil
	default:
		sort.Strings(gpioAliases)
		return nil, fmt.Errorf("multiple GPIO-capable devices connected (%s); specify a device alias", strings.Join(gpioAliases, ", "))
	}
}

// PromptSummary renders a deterministic (alias-sorted) device listing for
// the system prompt, one line per device. Only the cheap IsConnected flag is
// consulted — never a transport round trip, since the lock is held here.
func (r *Registry) PromptSummary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return NoHardwareDevicesSummary
	}

	aliases := make([]string, len(r.order))
	copy(aliases, r.order)
	sort.Strings(aliases)

	var b strings.Builder
	for _, alias := range aliases {
		d := r.devices[alias]
		arch := d.Architecture
		if arch == "" {
			arch = "unknown arch"
		}
		status := "no transport"
		if d.transport != nil {
			if d.transport.IsConnected() {
				status = "connected"
			} else {
				status = "disconnected"
			}
		}
		fmt.Fprintf(&b, "  %s — %s (%s) [%s]\n", alias, d.BoardName, arch, status)
	}
	return strings.TrimRight(b.String(), "\n")
}
