package service

import (
	"fmt"
	"strings"
)

// ModelPolicy tunes loop pacing per model family. ZeroClaw drives local and
// hosted models through the same loop; the only behavior that genuinely
// differs between families is how often they need a progress nudge before
// they wrap up a long tool-calling run.
//
// Resolution priority: defaults → auto-detect(modelID) → YAML override.
type ModelPolicy struct {
	// ProgressInterval is the step interval at which progress reminders are
	// injected into the conversation. 0 = disabled (for models that
	// self-terminate correctly).
	ProgressInterval int

	// ProgressEscalation increases urgency of progress messages as step
	// count grows.
	ProgressEscalation bool
}

// DefaultModelPolicy returns a safe baseline that works with most models.
func DefaultModelPolicy() ModelPolicy {
	return ModelPolicy{
		ProgressInterval:   10,
		ProgressEscalation: true,
	}
}

// ResolveModelPolicy auto-detects the pacing policy for a model ID, then
// applies any YAML overrides. Detection is substring matching on the model
// ID, so "openai/gpt-4o" and "gpt-4o-mini" land in the same family.
func ResolveModelPolicy(modelID string, overrides map[string]*ModelPolicyOverride) ModelPolicy {
	policy := DefaultModelPolicy()

	lower := strings.ToLower(modelID)
	switch {
	case containsAny(lower, "claude", "anthropic"):
		policy.ProgressInterval = 0 // self-terminates reliably
	case containsAny(lower, "minimax"):
		policy.ProgressInterval = 8
	case containsAny(lower, "qwen"):
		policy.ProgressInterval = 15
	case containsAny(lower, "deepseek"):
		policy.ProgressInterval = 12
	}

	if overrides == nil {
		return policy
	}

	// Longest matching family key wins
	matchedKey := ""
	for key := range overrides {
		if strings.Contains(lower, strings.ToLower(key)) {
			if len(key) > len(matchedKey) {
				matchedKey = key
			}
		}
	}
	if matchedKey != "" {
		applyOverride(&policy, overrides[matchedKey])
	}

	return policy
}

// ModelPolicyOverride holds YAML-configurable per-model policy overrides.
// All fields are pointers so nil = "don't override, use auto-detected value".
type ModelPolicyOverride struct {
	ProgressInterval   *int  `mapstructure:"progress_interval"`
	ProgressEscalation *bool `mapstructure:"progress_escalation"`
}

// applyOverride merges non-nil override fields into the policy.
func applyOverride(p *ModelPolicy, o *ModelPolicyOverride) {
	if o == nil {
		return
	}
	if o.ProgressInterval != nil {
		p.ProgressInterval = *o.ProgressInterval
	}
	if o.ProgressEscalation != nil {
		p.ProgressEscalation = *o.ProgressEscalation
	}
}

// BuildProgressMessage generates a step-appropriate progress reminder.
// The urgency escalates with step count when ProgressEscalation is enabled.
func (p *ModelPolicy) BuildProgressMessage(step int) string {
	if p.ProgressInterval <= 0 {
		return ""
	}

	if !p.ProgressEscalation {
		return fmt.Sprintf("[SYSTEM] 已执行 %d 步。请简要汇报当前进展和下一步计划。", step)
	}

	// Escalating urgency based on step count
	switch {
	case step <= 15:
		return fmt.Sprintf("[SYSTEM] 已执行 %d 步。请简要汇报当前进展。", step)
	case step <= 25:
		return fmt.Sprintf("[SYSTEM] ⚠️ 已执行 %d 步。请检查任务是否可以完成并回复用户。如果遇到无法解决的问题，请立即告知用户。", step)
	default:
		return fmt.Sprintf("[SYSTEM] 🚨 已执行 %d 步。你必须尽快完成当前任务并回复用户。如果无法完成，请告知用户当前进展和遇到的问题。", step)
	}
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
