package service

import (
	"strings"
	"testing"
)

func TestStripReasoningTags_Basic(t *testing.T) {
	in := "<think>pin 25 is probably the LED</think>GPIO 25 set HIGH on pico0"
	if got := StripReasoningTags(in); got != "GPIO 25 set HIGH on pico0" {
		t.Fatalf("got %q", got)
	}
}

func TestStripReasoningTags_NoTagsPassthrough(t *testing.T) {
	in := "plain reply, no markup"
	if got := StripReasoningTags(in); got != in {
		t.Fatalf("got %q", got)
	}
}

func TestStripReasoningTags_FinalUnwrapped(t *testing.T) {
	in := "<think>hidden</think><final>the answer</final>"
	if got := StripReasoningTags(in); got != "the answer" {
		t.Fatalf("got %q", got)
	}
}

func TestStripReasoningTags_UnclosedSwallowsTail(t *testing.T) {
	in := "visible part <think>half a thought that never closes"
	if got := StripReasoningTags(in); got != "visible part" {
		t.Fatalf("unclosed thinking must not leak, got %q", got)
	}
}

func TestStripReasoningTags_CodeBlocksPreserved(t *testing.T) {
	in := "Use this:\n```\n<think>not reasoning, an example</think>\n```\ndone"
	got := StripReasoningTags(in)
	if !strings.Contains(got, "<think>not reasoning, an example</think>") {
		t.Fatalf("fenced tag should be preserved, got %q", got)
	}

	inline := "escape `<think>` in markdown"
	if got := StripReasoningTags(inline); got != inline {
		t.Fatalf("inline code tag should be preserved, got %q", got)
	}
}

func TestStripReasoningTags_CaseAndVariants(t *testing.T) {
	in := "<THINKING>a</THINKING>x<thought>b</thought>y<antthinking>c</antthinking>z"
	if got := StripReasoningTags(in); got != "xyz" {
		t.Fatalf("got %q", got)
	}
}
