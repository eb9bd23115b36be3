package tool

import (
	domaindevice "github.com/zeroclaw/gateway/internal/domain/device"
	"github.com/zeroclaw/gateway/internal/domain/memory"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/internal/domain/urlguard"
	"github.com/zeroclaw/gateway/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// ToolLayerDeps aggregates all external dependencies needed by the tool
// layer. This is the single configuration point for the built-in tool set;
// subprocess plugins are registered separately by plugin.Loader against the
// same Registry.
type ToolLayerDeps struct {
	// Required
	Registry domaintool.Registry
	Logger   *zap.Logger

	// Shell/file tools run through this sandbox. nil disables them.
	Sandbox *sandbox.ProcessSandbox

	// GPIO tools resolve devices through this registry. nil disables them.
	DeviceRegistry *domaindevice.Registry

	// PPTX reader enforces workspace policy through this. nil disables it.
	WorkspaceSecurity *WorkspaceSecurity

	// web_fetch enforces SSRF policy through this. nil disables it.
	URLGuard *urlguard.Policy

	// Memory tools (save_memory/recall_memory) read/write through this.
	// nil disables them.
	Memory    *memory.HybridMemory
	SessionID string
}

// RegisterAllTools registers every built-in tool whose dependency is
// present in deps, in the order: file/search tools, GPIO, PPTX, web_fetch,
// memory. A nil dependency quietly skips the tools that need it rather than
// failing the whole registration pass — e.g. a gateway with no serial ports
// configured still starts, just without gpio_read/gpio_write.
func RegisterAllTools(deps ToolLayerDeps) int {
	var tools []domaintool.Tool

	if deps.Sandbox != nil {
		tools = append(tools,
			NewReadFileTool(deps.Sandbox, deps.Logger),
			NewListDirTool(deps.Sandbox, deps.Logger),
			NewSearchTool(deps.Sandbox, deps.Logger),
			NewGlobTool(deps.Sandbox, deps.Logger),
		)
	}

	if deps.DeviceRegistry != nil {
		tools = append(tools,
			NewGPIOWriteTool(deps.DeviceRegistry, deps.Logger),
			NewGPIOReadTool(deps.DeviceRegistry, deps.Logger),
		)
	}

	if deps.WorkspaceSecurity != nil {
		tools = append(tools, NewPPTXReaderTool(deps.WorkspaceSecurity, deps.Logger))
	}

	if deps.URLGuard != nil {
		tools = append(tools, NewWebFetchTool(deps.URLGuard, deps.Logger))
	}

	if deps.Memory != nil {
		tools = append(tools,
			NewSaveMemoryTool(deps.Memory, deps.SessionID, deps.Logger),
			NewRecallMemoryTool(deps.Memory, deps.SessionID, deps.Logger),
		)
	}

	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("failed to register tool",
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
			continue
		}
		deps.Logger.Info("registered tool", zap.String("tool", t.Name()))
		registered++
	}

	deps.Logger.Info("tool layer initialized", zap.Int("total_registered", registered))
	return registered
}
