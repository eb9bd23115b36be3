// Package transport implements the wire-level device transports: a serial
// port transport today, built on top of go.bug.st/serial.
//
// Grounded on original_source/src/peripherals/serial.rs (protocol, timeouts,
// drain-on-timeout resync) and original_source/src/util.rs
// (is_serial_path_allowed).
package transport

import (
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// requestTimeout bounds a single command round trip.
	requestTimeout = 5 * time.Second
	// pingTimeout bounds the discovery-time ping handshake.
	pingTimeout = 300 * time.Millisecond
	// drainTimeout bounds the best-effort resync read after a timeout.
	drainTimeout = 200 * time.Millisecond
)

var (
	linuxSerialPattern   = regexp.MustCompile(`^/dev/tty(ACM|USB|S|AMA|MFD)\d+$`)
	macSerialPattern     = regexp.MustCompile(`^/dev/(tty|cu)\.(usbmodem|usbserial)[^\x00/]*$`)
	windowsSerialPattern = regexp.MustCompile(`^COM\d{1,3}$`)
)

// IsSerialPathAllowed applies the per-OS allowlist regex. Unrecognized
// platforms are rejected outright rather than falling back to a permissive
// prefix match (see DESIGN.md Open Question decisions).
func IsSerialPathAllowed(path string) bool {
	switch runtime.GOOS {
	case "linux":
		return linuxSerialPattern.MatchString(path)
	case "darwin":
		return macSerialPattern.MatchString(path)
	case "windows":
		return windowsSerialPattern.MatchString(path)
	default:
		return false
	}
}

// SerialTransport implements device.Transport over a serial port using a
// newline-delimited JSON envelope: request {"cmd":...,"params":...},
// response {"ok":...,"data":...,"error":...}.
//
// The port is opened lazily on first Send and discarded on any I/O error,
// so the next Send re-opens it — a replug of the same path recovers without
// a registry-level reconnect.
type SerialTransport struct {
	mu   sync.Mutex
	path string
	baud int
	port serial.Port
}

// NewSerialTransport validates path against the OS allowlist. The port is
// not opened until the first Send.
func NewSerialTransport(path string, baud int) (*SerialTransport, error) {
	if !IsSerialPathAllowed(path) {
		return nil, fmt.Errorf("serial path %q is not in the allowed set (expected one of /dev/ttyACM*, /dev/ttyUSB*, /dev/tty.usbmodem*, /dev/cu.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbserial*, COM*)", path)
	}
	if baud <= 0 {
		baud = 115200
	}
	return &SerialTransport{path: path, baud: baud}, nil
}

type wireRequest struct {
	Cmd    string                 `json:"cmd"`
	Params map[string]interface{} `json:"params"`
}

type wireResponse struct {
	OK    bool                   `json:"ok"`
	Data  map[string]interface{} `json:"data"`
	Error string                 `json:"error"`
}

// Kind names the transport implementation.
func (t *SerialTransport) Kind() string { return "serial" }

// IsConnected reports whether the port handle is currently open. It takes
// the transport's own mutex only, never a registry lock, and performs no
// I/O.
func (t *SerialTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Send writes one newline-terminated request and reads one newline-
// terminated response within requestTimeout. On a timeout it attempts a
// bounded drain-to-newline resync so the next call starts clean; on an I/O
// error the port handle is discarded so the next call re-opens the path.
func (t *SerialTransport) Send(cmd string, params map[string]interface{}) (map[string]interface{}, error) {
	return t.send(cmd, params, requestTimeout)
}

// Ping sends a liveness probe with the short discovery deadline.
func (t *SerialTransport) Ping() error {
	_, err := t.send("ping", nil, pingTimeout)
	return err
}

func (t *SerialTransport) send(cmd string, params map[string]interface{}, deadline time.Duration) (map[string]interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		mode := &serial.Mode{BaudRate: t.baud}
		port, err := serial.Open(t.path, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", t.path, err)
		}
		t.port = port
	}

	req := wireRequest{Cmd: cmd, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := t.port.Write(payload); err != nil {
		t.discardPortLocked()
		return nil, fmt.Errorf("write serial request: %w", err)
	}

	line, timedOut, err := t.readLine(deadline)
	if err != nil {
		if timedOut {
			// A late response line would desynchronize the next request's
			// read; eat up to one newline (or 200ms of silence) first.
			t.drainToNewline()
		} else {
			t.discardPortLocked()
		}
		return nil, fmt.Errorf("serial request failed: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("device error: %s", resp.Error)
	}
	return resp.Data, nil
}

// readLine reads byte-at-a-time until '\n' or deadline, matching the
// original's approach of not assuming a buffered line reader is safe across
// a lossy serial link. The second return reports whether the failure was a
// deadline rather than an I/O error.
func (t *SerialTransport) readLine(deadline time.Duration) ([]byte, bool, error) {
	_ = t.port.SetReadTimeout(deadline)
	var buf []byte
	single := make([]byte, 1)
	start := time.Now()
	for {
		if time.Since(start) > deadline {
			return nil, true, fmt.Errorf("read timeout after %s", deadline)
		}
		n, err := t.port.Read(single)
		if err != nil {
			return nil, false, err
		}
		if n == 0 {
			return nil, true, fmt.Errorf("read timeout after %s", deadline)
		}
		if single[0] == '\n' {
			return buf, false, nil
		}
		buf = append(buf, single[0])
	}
}

// drainToNewline best-effort reads and discards bytes up to drainTimeout,
// so a stray partial line left by a prior timeout doesn't corrupt the next
// request's response parsing.
func (t *SerialTransport) drainToNewline() {
	_ = t.port.SetReadTimeout(drainTimeout)
	single := make([]byte, 1)
	start := time.Now()
	for time.Since(start) < drainTimeout {
		n, err := t.port.Read(single)
		if err != nil || n == 0 {
			return
		}
		if single[0] == '\n' {
			return
		}
	}
}

func (t *SerialTransport) discardPortLocked() {
	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}
}

// Close closes the underlying port if open.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
