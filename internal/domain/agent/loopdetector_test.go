package agent

import (
	"strings"
	"testing"
)

func TestLoopDetector_NoPatternContinues(t *testing.T) {
	d := NewLoopDetector(DefaultLoopDetectionConfig())

	verdict, _ := d.Check(NewCallRecord("read_file", "a", "result-a", true))
	if verdict != Continue {
		t.Fatalf("expected Continue, got %v", verdict)
	}
	verdict, _ = d.Check(NewCallRecord("write_file", "b", "result-b", true))
	if verdict != Continue {
		t.Fatalf("expected Continue, got %v", verdict)
	}
}

func TestLoopDetector_NoProgressRepeatInjectsThenHardStops(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{NoProgressRepeatThreshold: 3})

	rec := NewCallRecord("bash", `{"cmd":"ls"}`, "same output", true)
	if v, _ := d.Check(rec); v != Continue {
		t.Fatalf("call 1: expected Continue, got %v", v)
	}
	if v, _ := d.Check(rec); v != Continue {
		t.Fatalf("call 2: expected Continue, got %v", v)
	}
	v, text := d.Check(rec)
	if v != InjectWarning {
		t.Fatalf("call 3: expected InjectWarning, got %v", v)
	}
	if text == "" {
		t.Fatal("expected non-empty warning text")
	}

	// Recurrence after the warning hard-stops.
	v, _ = d.Check(rec)
	if v != HardStop {
		t.Fatalf("call 4: expected HardStop, got %v", v)
	}
}

func TestLoopDetector_PingPong(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{PingPongThreshold: 2})

	a := NewCallRecord("tool_a", "args1", "out1", true)
	b := NewCallRecord("tool_b", "args2", "out2", true)

	d.Check(a)
	d.Check(b)
	d.Check(a)
	v, _ := d.Check(b)
	if v != InjectWarning {
		t.Fatalf("expected InjectWarning on A/B/A/B, got %v", v)
	}
}

func TestLoopDetector_NoProgressWarningNamesThePattern(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{NoProgressRepeatThreshold: 3})

	rec := NewCallRecord("echo", `{"msg":"hi"}`, "hello", true)
	d.Check(rec)
	d.Check(rec)
	v, text := d.Check(rec)
	if v != InjectWarning {
		t.Fatalf("expected InjectWarning, got %v", v)
	}
	if !strings.Contains(text, "no progress") {
		t.Fatalf("warning should name the no-progress pattern, got %q", text)
	}
	v, text = d.Check(rec)
	if v != HardStop {
		t.Fatalf("expected HardStop, got %v", v)
	}
	if !strings.Contains(text, "no progress") {
		t.Fatalf("hard-stop reason should name the no-progress pattern, got %q", text)
	}
}

func TestLoopDetector_PingPongWithProgressContinues(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{PingPongThreshold: 2})

	b := NewCallRecord("tool_b", "args2", "out-b", true)
	d.Check(NewCallRecord("tool_a", "args1", "out-1", true))
	d.Check(b)
	d.Check(NewCallRecord("tool_a", "args1", "out-2", true)) // different result: progress
	if v, _ := d.Check(b); v != Continue {
		t.Fatalf("expected Continue when one side's output changes, got %v", v)
	}
}

func TestLoopDetector_SameCallAlternatingResultIsNotPingPong(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{PingPongThreshold: 2})

	// Same (tool, args) with alternating results is a retry, not a ping-pong.
	a := NewCallRecord("poll", "{}", "state-1", true)
	b := NewCallRecord("poll", "{}", "state-2", true)
	d.Check(a)
	d.Check(b)
	d.Check(a)
	if v, _ := d.Check(b); v != Continue {
		t.Fatalf("expected Continue for same-call alternating results, got %v", v)
	}
}

func TestLoopDetector_FailureStreakIsPerTool(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{FailureStreakThreshold: 3})

	// Alternate two different failing tools with distinct args/results so
	// neither no-progress-repeat nor ping-pong fires first — only the
	// per-tool failure streak for "flaky_tool" should trip.
	d.Check(NewCallRecord("flaky_tool", "1", "err1", false))
	d.Check(NewCallRecord("other_tool", "x", "ok", true))
	d.Check(NewCallRecord("flaky_tool", "2", "err2", false))
	d.Check(NewCallRecord("other_tool", "y", "ok", true))
	v, _ := d.Check(NewCallRecord("flaky_tool", "3", "err3", false))
	if v != InjectWarning {
		t.Fatalf("expected InjectWarning on third consecutive flaky_tool failure, got %v", v)
	}
}

func TestLoopDetector_SuccessResetsFailureStreak(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{FailureStreakThreshold: 3})

	d.Check(NewCallRecord("flaky_tool", "1", "err1", false))
	d.Check(NewCallRecord("flaky_tool", "2", "err2", false))
	d.Check(NewCallRecord("flaky_tool", "3", "ok", true)) // resets the streak
	v, _ := d.Check(NewCallRecord("flaky_tool", "4", "err4", false))
	if v != Continue {
		t.Fatalf("expected Continue after success reset the streak, got %v", v)
	}
}

func TestLoopDetector_DisabledThresholdNeverFires(t *testing.T) {
	d := NewLoopDetector(LoopDetectionConfig{}) // all thresholds 0 = disabled

	rec := NewCallRecord("bash", "same", "same", false)
	for i := 0; i < 10; i++ {
		if v, _ := d.Check(rec); v != Continue {
			t.Fatalf("iteration %d: expected Continue with all strategies disabled, got %v", i, v)
		}
	}
}
