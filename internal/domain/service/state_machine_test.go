package service

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine(testLogger())
	if sm.State() != StateIdle {
		t.Errorf("expected initial state idle, got %s", sm.State())
	}
	if sm.IsTerminal() {
		t.Error("idle must not be terminal")
	}
}

func TestValidTransitionPaths(t *testing.T) {
	tests := []struct {
		name string
		path []AgentState
	}{
		{
			name: "straight completion",
			path: []AgentState{StateStreaming, StateComplete},
		},
		{
			name: "tool round trip",
			path: []AgentState{StateStreaming, StateToolExec, StateStreaming, StateComplete},
		},
		{
			name: "compaction mid-run",
			path: []AgentState{StateStreaming, StateCompacting, StateStreaming, StateComplete},
		},
		{
			name: "retry then complete",
			path: []AgentState{StateStreaming, StateRetrying, StateStreaming, StateComplete},
		},
		{
			name: "loop detector hard stop",
			path: []AgentState{StateStreaming, StateToolExec, StateStopped},
		},
		{
			name: "user abort while streaming",
			path: []AgentState{StateStreaming, StateAborted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(testLogger())
			for _, to := range tt.path {
				if err := sm.Transition(to); err != nil {
					t.Fatalf("transition to %s: %v", to, err)
				}
			}
			if sm.State() != tt.path[len(tt.path)-1] {
				t.Errorf("final state = %s, want %s", sm.State(), tt.path[len(tt.path)-1])
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from AgentState
		to   AgentState
	}{
		{"idle -> complete", StateIdle, StateComplete},
		{"idle -> tool_exec", StateIdle, StateToolExec},
		{"idle -> stopped", StateIdle, StateStopped},
		{"streaming -> stopped", StateStreaming, StateStopped}, // hard stop only fires after tool exec
		{"complete -> idle (terminal)", StateComplete, StateIdle},
		{"stopped -> streaming (terminal)", StateStopped, StateStreaming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(testLogger())
			driveTo(t, sm, tt.from)
			if err := sm.Transition(tt.to); err == nil {
				t.Errorf("transition %s → %s should be rejected", tt.from, tt.to)
			}
		})
	}
}

// driveTo walks the machine to the wanted state through a legal path.
func driveTo(t *testing.T, sm *StateMachine, want AgentState) {
	t.Helper()
	paths := map[AgentState][]AgentState{
		StateIdle:       {},
		StateStreaming:  {StateStreaming},
		StateToolExec:   {StateStreaming, StateToolExec},
		StateCompacting: {StateStreaming, StateCompacting},
		StateRetrying:   {StateStreaming, StateRetrying},
		StateComplete:   {StateStreaming, StateComplete},
		StateStopped:    {StateStreaming, StateToolExec, StateStopped},
		StateError:      {StateStreaming, StateError},
		StateAborted:    {StateStreaming, StateAborted},
	}
	for _, to := range paths[want] {
		if err := sm.Transition(to); err != nil {
			t.Fatalf("drive to %s via %s: %v", want, to, err)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		state    AgentState
		terminal bool
	}{
		{StateIdle, false},
		{StateStreaming, false},
		{StateToolExec, false},
		{StateComplete, true},
		{StateStopped, true},
		{StateError, true},
		{StateAborted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			sm := NewStateMachine(testLogger())
			driveTo(t, sm, tt.state)
			if sm.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() for %s: got %v, want %v", tt.state, sm.IsTerminal(), tt.terminal)
			}
		})
	}
}

func TestSnapshotCounters(t *testing.T) {
	sm := NewStateMachine(testLogger())
	sm.SetStep(5)
	sm.AddTokens(1200)
	sm.RecordToolExec("gpio_write")
	sm.RecordToolExec("web_fetch")
	sm.RecordRetry()
	sm.RecordError()
	sm.SetModel("openai/gpt-4o")

	snap := sm.Snapshot()
	if snap.Step != 5 || snap.TokensUsed != 1200 {
		t.Errorf("step/tokens = %d/%d", snap.Step, snap.TokensUsed)
	}
	if snap.ToolsExecuted != 2 || snap.LastTool != "web_fetch" {
		t.Errorf("tools = %d, last = %s", snap.ToolsExecuted, snap.LastTool)
	}
	if snap.RetryCount != 1 || snap.ErrorCount != 1 {
		t.Errorf("retries/errors = %d/%d", snap.RetryCount, snap.ErrorCount)
	}
	if snap.ModelUsed != "openai/gpt-4o" {
		t.Errorf("model = %s", snap.ModelUsed)
	}
}

func TestSnapshotLoopVerdicts(t *testing.T) {
	sm := NewStateMachine(testLogger())

	sm.RecordLoopWarning("no progress: the same call repeated")
	snap := sm.Snapshot()
	if snap.WarningsInjected != 1 {
		t.Errorf("warnings = %d, want 1", snap.WarningsInjected)
	}
	if snap.LoopPattern == "" {
		t.Error("loop pattern should be recorded with the warning")
	}

	sm.RecordLoopStop("ping-pong between tools")
	snap = sm.Snapshot()
	if snap.WarningsInjected != 1 {
		t.Errorf("hard stop must not count as a second warning, got %d", snap.WarningsInjected)
	}
	if snap.LoopPattern != "ping-pong between tools" {
		t.Errorf("loop pattern = %q", snap.LoopPattern)
	}
}

func TestTransitionListeners(t *testing.T) {
	sm := NewStateMachine(testLogger())

	var got []string
	sm.OnTransition(func(from, to AgentState, snap StateSnapshot) {
		got = append(got, fmt.Sprintf("%s->%s", from, to))
	})

	_ = sm.Transition(StateStreaming)
	_ = sm.Transition(StateComplete)

	want := []string{"idle->streaming", "streaming->complete"}
	if len(got) != len(want) {
		t.Fatalf("listener calls = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	sm := NewStateMachine(testLogger())
	_ = sm.Transition(StateStreaming)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = sm.Snapshot()
				_ = sm.IsTerminal()
				sm.SetStep(n)
				sm.AddTokens(1)
				sm.RecordToolExec("t")
			}
		}(i)
	}
	wg.Wait()

	snap := sm.Snapshot()
	if snap.TokensUsed != 800 || snap.ToolsExecuted != 800 {
		t.Errorf("tokens/tools = %d/%d, want 800/800", snap.TokensUsed, snap.ToolsExecuted)
	}
}
