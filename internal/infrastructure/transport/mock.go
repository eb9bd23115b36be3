package transport

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MockTransport is an in-process device.Transport used in tests and dry-run
// wiring: it records every frame that would have gone over the wire and
// answers from a scripted response table keyed by command name.
type MockTransport struct {
	mu        sync.Mutex
	responses map[string]map[string]interface{}
	errs      map[string]error
	sent      []string
	connected bool
}

// NewMockTransport creates a connected mock with no scripted responses;
// unscripted commands answer {ok:true} with empty data.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string]map[string]interface{}),
		errs:      make(map[string]error),
		connected: true,
	}
}

// Respond scripts the data payload returned for cmd.
func (m *MockTransport) Respond(cmd string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = data
}

// Fail scripts an error returned for cmd.
func (m *MockTransport) Fail(cmd string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[cmd] = err
}

// SetConnected flips the IsConnected flag.
func (m *MockTransport) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// SentFrames returns the exact newline-terminated request lines Send has
// produced so far, in order.
func (m *MockTransport) SentFrames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockTransport) Kind() string { return "mock" }

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Ping() error {
	_, err := m.Send("ping", nil)
	return err
}

// Send records the frame exactly as the serial transport would have written
// it, then answers from the scripted table.
func (m *MockTransport) Send(cmd string, params map[string]interface{}) (map[string]interface{}, error) {
	frame, err := json.Marshal(wireRequest{Cmd: cmd, Params: params})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, string(frame)+"\n")

	if !m.connected {
		return nil, fmt.Errorf("mock transport disconnected")
	}
	if err, ok := m.errs[cmd]; ok {
		return nil, err
	}
	if data, ok := m.responses[cmd]; ok {
		return data, nil
	}
	return map[string]interface{}{}, nil
}
