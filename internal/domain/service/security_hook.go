// Copyright 2026 ZeroClaw. All rights reserved.

package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/internal/infrastructure/config"
)

// ApprovalFunc is the callback to request user confirmation for a gated
// tool call. It blocks until the user responds or the context is cancelled.
// Returns true if approved, false if denied/timeout.
type ApprovalFunc func(ctx context.Context, toolName string, args map[string]interface{}) (bool, error)

// SecurityHook gates tool calls through BeforeToolCall based on
// SecurityConfig rules. Tools named in neither list fall back to their
// registered Kind: read-only kinds pass, side-effecting kinds count as
// dangerous. With no approver wired in, a gated call is denied — a headless
// gateway must not wave side effects through just because nobody can answer.
type SecurityHook struct {
	cfg          config.SecurityConfig
	kindOf       func(toolName string) domaintool.Kind
	approvalFunc ApprovalFunc
	logger       *zap.Logger
	mu           sync.RWMutex
}

// NewSecurityHook creates a SecurityHook. kindOf resolves a tool name to its
// registered Kind for the fallback classification; nil means every unlisted
// tool is treated as side-effecting.
func NewSecurityHook(cfg config.SecurityConfig, kindOf func(string) domaintool.Kind, approvalFunc ApprovalFunc, logger *zap.Logger) *SecurityHook {
	return &SecurityHook{
		cfg:          cfg,
		kindOf:       kindOf,
		approvalFunc: approvalFunc,
		logger:       logger,
	}
}

// ---- AgentHook interface ----

func (h *SecurityHook) BeforeToolCall(ctx context.Context, toolName string, args map[string]interface{}) bool {
	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()

	// 1. Auto mode — always allow
	if cfg.ApprovalMode == "auto" {
		return true
	}

	// 2. Trusted tools — always allow (highest priority)
	if h.isTrusted(toolName, args, cfg) {
		return true
	}

	// 3. ask_dangerous — only gate dangerous tools
	if cfg.ApprovalMode == "ask_dangerous" {
		if !h.isDangerous(toolName, cfg) {
			return true
		}
	}
	// ask_all falls through — every non-trusted tool needs approval

	// 4. Request approval; with nobody to ask, deny
	if h.approvalFunc == nil {
		h.logger.Warn("Tool call gated and no approver configured, denying",
			zap.String("tool", toolName),
			zap.String("mode", cfg.ApprovalMode),
		)
		return false
	}

	h.logger.Info("Requesting user approval for tool",
		zap.String("tool", toolName),
		zap.String("mode", cfg.ApprovalMode),
	)

	approved, err := h.approvalFunc(ctx, toolName, args)
	if err != nil {
		h.logger.Error("Approval request failed",
			zap.String("tool", toolName),
			zap.Error(err),
		)
		return false
	}

	if !approved {
		h.logger.Info("Tool call denied by user",
			zap.String("tool", toolName),
		)
	}

	return approved
}

func (h *SecurityHook) AfterToolCall(_ context.Context, _ string, _ string, _ bool) {}
func (h *SecurityHook) OnLoopVerdict(_ context.Context, _ string, _ bool)           {}
func (h *SecurityHook) BeforeLLMCall(_ context.Context, _ *LLMRequest, _ int)       {}
func (h *SecurityHook) AfterLLMCall(_ context.Context, _ *LLMResponse, _ int)       {}
func (h *SecurityHook) OnStateChange(_ AgentState, _ AgentState, _ StateSnapshot)   {}
func (h *SecurityHook) OnError(_ context.Context, _ error, _ int)                   {}
func (h *SecurityHook) OnComplete(_ context.Context, _ *AgentResult)                {}

// ---- Policy helpers ----

// isTrusted checks the trust list, then the read-only-kind fallback for
// tools the config never mentions.
func (h *SecurityHook) isTrusted(toolName string, args map[string]interface{}, cfg config.SecurityConfig) bool {
	for _, t := range cfg.TrustedTools {
		if t == toolName {
			return true
		}
	}

	// Shell-style tools: trust by command prefix
	if _, hasCommand := args["command"]; hasCommand {
		return h.isCommandTrusted(args, cfg)
	}

	// Unlisted read-only tools pass without a prompt
	if !h.isDangerous(toolName, cfg) && h.kindOf != nil && h.kindOf(toolName).ReadOnly() {
		return true
	}

	return false
}

// isDangerous checks the dangerous list, falling back to the tool's Kind
// for names the config doesn't carry.
func (h *SecurityHook) isDangerous(toolName string, cfg config.SecurityConfig) bool {
	for _, d := range cfg.DangerousTools {
		if d == toolName {
			return true
		}
	}
	if h.kindOf != nil {
		return !h.kindOf(toolName).ReadOnly()
	}
	return true
}

// isCommandTrusted checks if a shell command matches a trusted command prefix.
func (h *SecurityHook) isCommandTrusted(args map[string]interface{}, cfg config.SecurityConfig) bool {
	cmd, ok := args["command"].(string)
	if !ok {
		return false
	}
	cmd = strings.TrimSpace(cmd)

	// Extract the first token (the actual command binary)
	firstToken := cmd
	if idx := strings.IndexAny(cmd, " \t|;&"); idx >= 0 {
		firstToken = cmd[:idx]
	}
	// Strip path prefix (e.g. /usr/bin/ls → ls)
	if idx := strings.LastIndex(firstToken, "/"); idx >= 0 {
		firstToken = firstToken[idx+1:]
	}

	for _, trusted := range cfg.TrustedCommands {
		if firstToken == trusted {
			return true
		}
	}
	return false
}

// UpdateConfig replaces the security config at runtime (config hot-reload).
func (h *SecurityHook) UpdateConfig(cfg config.SecurityConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}
