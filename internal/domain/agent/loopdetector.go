// Package agent holds the agent-loop-level domain logic that isn't specific
// to any one interface: loop detection and chat-message intake.
package agent

import (
	"fmt"
	"hash/fnv"
)

// LoopDetectionConfig tunes the three detection strategies.
//
// Grounded on original_source/src/agent/loop_/detection.rs's
// LoopDetectionConfig, same field defaults.
type LoopDetectionConfig struct {
	// NoProgressRepeatThreshold is how many consecutive identical
	// (tool, args, result) calls trigger strategy 1.
	NoProgressRepeatThreshold int
	// PingPongThreshold is how many A/B/A/B alternations trigger strategy 2.
	PingPongThreshold int
	// FailureStreakThreshold is how many consecutive failing calls of the
	// same tool trigger strategy 3 (each tool keeps its own streak).
	FailureStreakThreshold int
}

// DefaultLoopDetectionConfig matches the original's defaults (3/2/3).
func DefaultLoopDetectionConfig() LoopDetectionConfig {
	return LoopDetectionConfig{
		NoProgressRepeatThreshold: 3,
		PingPongThreshold:         2,
		FailureStreakThreshold:    3,
	}
}

// Verdict is the outcome of checking a new call against recent history.
type Verdict int

const (
	// Continue means no loop pattern was found.
	Continue Verdict = iota
	// InjectWarning means a pattern was found for the first time in this
	// run: inject a warning into the conversation and keep going.
	InjectWarning
	// HardStop means a pattern was found again after a warning was
	// already injected: stop the loop.
	HardStop
)

// CallRecord is one (tool call, result) pair tracked by the detector. The
// hashes are 64-bit so records stay cheap to compare and store.
type CallRecord struct {
	ToolName   string
	ArgsHash   uint64
	ResultHash uint64
	Success    bool
}

// NewCallRecord builds a CallRecord, hashing args and the first 4096 bytes
// of the result.
func NewCallRecord(toolName string, args, result string, success bool) CallRecord {
	return CallRecord{
		ToolName:   toolName,
		ArgsHash:   hashPrefix(args, 4096),
		ResultHash: hashPrefix(result, 4096),
		Success:    success,
	}
}

func hashPrefix(s string, n int) uint64 {
	if len(s) > n {
		s = s[:n]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// LoopDetector evaluates a growing call history against the three
// strategies, latching after the first warning so a recurrence hard-stops
// instead of warning again.
//
// Grounded on detection.rs's LoopDetector: the warning_injected latch never
// resets within one run (see DESIGN.md Open Question decisions) — a fresh
// agent-loop run gets a fresh detector.
type LoopDetector struct {
	cfg             LoopDetectionConfig
	history         []CallRecord
	warningInjected bool
	failureStreaks  map[string]int
}

// NewLoopDetector creates a detector with the given config.
func NewLoopDetector(cfg LoopDetectionConfig) *LoopDetector {
	return &LoopDetector{cfg: cfg, failureStreaks: make(map[string]int)}
}

// Check appends rec to the history and evaluates the three strategies in
// order: no-progress-repeat, ping-pong, failure-streak. The first strategy
// to match wins; nothing afterward is evaluated.
func (d *LoopDetector) Check(rec CallRecord) (Verdict, string) {
	d.history = append(d.history, rec)

	if rec.Success {
		d.failureStreaks[rec.ToolName] = 0
	} else {
		d.failureStreaks[rec.ToolName]++
	}

	if pattern, ok := d.checkNoProgressRepeat(); ok {
		return d.verdictFor(pattern)
	}
	if pattern, ok := d.checkPingPong(); ok {
		return d.verdictFor(pattern)
	}
	if pattern, ok := d.checkFailureStreak(); ok {
		return d.verdictFor(pattern)
	}
	return Continue, ""
}

func (d *LoopDetector) verdictFor(pattern string) (Verdict, string) {
	if d.warningInjected {
		return HardStop, pattern
	}
	d.warningInjected = true
	return InjectWarning, formatWarning(pattern)
}

// checkNoProgressRepeat looks for the same (tool, args, result) repeated
// NoProgressRepeatThreshold times in a row at the tail of history.
func (d *LoopDetector) checkNoProgressRepeat() (string, bool) {
	n := d.cfg.NoProgressRepeatThreshold
	if n <= 0 || len(d.history) < n {
		return "", false
	}
	tail := d.history[len(d.history)-n:]
	first := tail[0]
	for _, r := range tail[1:] {
		if r.ToolName != first.ToolName || r.ArgsHash != first.ArgsHash || r.ResultHash != first.ResultHash {
			return "", false
		}
	}
	return fmt.Sprintf("no progress: the same %q call repeated %d times with an identical result", first.ToolName, n), true
}

// checkPingPong looks for A/B/A/B... alternation of length
// 2*PingPongThreshold at the tail, where A and B genuinely differ (an
// A==B run is caught by checkNoProgressRepeat instead).
func (d *LoopDetector) checkPingPong() (string, bool) {
	cycles := d.cfg.PingPongThreshold
	if cycles <= 0 {
		return "", false
	}
	window := cycles * 2
	minHistory := window
	if minHistory < 4 {
		minHistory = 4
	}
	if len(d.history) < minHistory {
		return "", false
	}
	tail := d.history[len(d.history)-window:]
	a, b := tail[0], tail[1]
	// A and B must be genuinely different calls by (tool, args); a pair that
	// differs only in result is a retry making progress, not a ping-pong.
	if a.ToolName == b.ToolName && a.ArgsHash == b.ArgsHash {
		return "", false
	}
	for i := 0; i < window; i++ {
		want := a
		if i%2 == 1 {
			want = b
		}
		if !sameCall(tail[i], want) {
			return "", false
		}
	}
	return fmt.Sprintf("alternating between %q and %q %d times without progress", a.ToolName, b.ToolName, cycles), true
}

func sameCall(a, b CallRecord) bool {
	return a.ToolName == b.ToolName && a.ArgsHash == b.ArgsHash && a.ResultHash == b.ResultHash
}

// checkFailureStreak looks for any tool whose own consecutive-failure count
// (tracked independently per tool name, reset on that tool's success) has
// reached FailureStreakThreshold.
func (d *LoopDetector) checkFailureStreak() (string, bool) {
	n := d.cfg.FailureStreakThreshold
	if n <= 0 {
		return "", false
	}
	for tool, streak := range d.failureStreaks {
		if streak >= n {
			return fmt.Sprintf("%q failed %d consecutive times", tool, streak), true
		}
	}
	return "", false
}

// formatWarning renders the injected-into-conversation warning text for a
// detected pattern.
func formatWarning(pattern string) string {
	return fmt.Sprintf(
		"Loop detected: %s.\n"+
			"1. Try a different tool or different arguments instead of repeating this exact action.\n"+
			"2. If you are polling for a state change, increase the wait time between checks.\n"+
			"3. If the task cannot be completed, explain what is blocking you and stop.\n"+
			"Do not repeat the same call again.",
		pattern,
	)
}
