package tool

import (
	"context"
	"fmt"

	"github.com/zeroclaw/gateway/internal/domain/device"
	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"go.uber.org/zap"
)

// GPIOWriteTool drives a GPIO pin HIGH or LOW on a registered board.
// Grounded on original_source/src/hardware/device.rs's GPIO command shape
// and internal/domain/device.Registry.ResolveGPIODevice.
type GPIOWriteTool struct {
	registry *device.Registry
	logger   *zap.Logger
}

func NewGPIOWriteTool(registry *device.Registry, logger *zap.Logger) *GPIOWriteTool {
	return &GPIOWriteTool{registry: registry, logger: logger}
}

func (t *GPIOWriteTool) Name() string          { return "gpio_write" }
func (t *GPIOWriteTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *GPIOWriteTool) Description() string {
	return "Set a GPIO pin HIGH or LOW on a connected board. Pass 'device' to target a specific board when more than one is connected."
}

func (t *GPIOWriteTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"device": map[string]interface{}{
				"type":        "string",
				"description": "Device alias (e.g. \"pico0\"). Optional when exactly one GPIO-capable device is connected.",
			},
			"pin": map[string]interface{}{
				"type":        "integer",
				"description": "GPIO pin number",
			},
			"value": map[string]interface{}{
				"type":        "integer",
				"description": "0 (LOW) or 1 (HIGH)",
			},
		},
		"required": []string{"pin", "value"},
	}
}

func (t *GPIOWriteTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	pinF, ok := args["pin"].(float64)
	if !ok {
		return &Result{Success: false, Error: "missing required parameter: pin"}, nil
	}
	valueF, ok := args["value"].(float64)
	if !ok {
		return &Result{Success: false, Error: "missing required parameter: value"}, nil
	}
	value := int(valueF)
	if value != 0 && value != 1 {
		return &Result{Success: false, Error: "value must be 0 or 1"}, nil
	}
	alias, _ := args["device"].(string)

	devCtx, err := t.registry.ResolveGPIODevice(alias)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	pin := int(pinF)
	resp, err := devCtx.Transport.Send("gpio_write", map[string]interface{}{"pin": pin, "value": value})
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("transport error: %v", err)}, nil
	}
	_ = resp

	state := "LOW"
	if value == 1 {
		state = "HIGH"
	}
	return &Result{
		Success: true,
		Output:  fmt.Sprintf("GPIO %d set %s on %s", pin, state, devCtx.Alias),
		Metadata: map[string]interface{}{
			"device": devCtx.Alias,
			"pin":    pin,
			"value":  value,
		},
	}, nil
}

// GPIOReadTool reads the current digital state of a GPIO pin.
type GPIOReadTool struct {
	registry *device.Registry
	logger   *zap.Logger
}

func NewGPIOReadTool(registry *device.Registry, logger *zap.Logger) *GPIOReadTool {
	return &GPIOReadTool{registry: registry, logger: logger}
}

func (t *GPIOReadTool) Name() string          { return "gpio_read" }
func (t *GPIOReadTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GPIOReadTool) Description() string {
	return "Read the current digital state of a GPIO pin on a connected board."
}

func (t *GPIOReadTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"device": map[string]interface{}{
				"type":        "string",
				"description": "Device alias. Optional when exactly one GPIO-capable device is connected.",
			},
			"pin": map[string]interface{}{
				"type":        "integer",
				"description": "GPIO pin number",
			},
		},
		"required": []string{"pin"},
	}
}

func (t *GPIOReadTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	pinF, ok := args["pin"].(float64)
	if !ok {
		return &Result{Success: false, Error: "missing required parameter: pin"}, nil
	}
	alias, _ := args["device"].(string)

	devCtx, err := t.registry.ResolveGPIODevice(alias)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	pin := int(pinF)
	resp, err := devCtx.Transport.Send("gpio_read", map[string]interface{}{"pin": pin})
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("transport error: %v", err)}, nil
	}

	v := 0
	if raw, ok := resp["value"]; ok {
		switch n := raw.(type) {
		case float64:
			v = int(n)
		case int:
			v = n
		}
	}
	state := "LOW"
	if v == 1 {
		state = "HIGH"
	}

	return &Result{
		Success: true,
		Output:  fmt.Sprintf("GPIO %d is %s (%d) on %s", pin, state, v, devCtx.Alias),
		Metadata: map[string]interface{}{
			"device": devCtx.Alias,
			"pin":    pin,
			"value":  v,
		},
	}, nil
}
