// Package device wires the configured serial ports into the domain device
// registry: each configured path gets a ping handshake before it is
// registered, so a stray USB-serial adapter with no ZeroClaw firmware never
// shows up as a usable device.
//
// Grounded on original_source/src/hardware/device.rs's DeviceRegistry::discover,
// adapted to the explicit-allowlist serial config ZeroClaw's gateway uses
// instead of Rust's USB VID/PID enumeration.
package device

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	domaindevice "github.com/zeroclaw/gateway/internal/domain/device"
	"github.com/zeroclaw/gateway/internal/infrastructure/config"
	"github.com/zeroclaw/gateway/internal/infrastructure/transport"
)

// Discover opens a transport for each configured serial port, pings it, and
// registers it in the registry only if the ping succeeds. A configured port
// that fails its allowlist check or ping handshake is logged and skipped —
// it never aborts discovery of the remaining ports.
func Discover(cfg config.DeviceConfig, registry *domaindevice.Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry.SetDialer(func(path string) (domaindevice.Transport, error) {
		return transport.NewSerialTransport(path, cfg.BaudRate)
	})

	for _, path := range cfg.SerialPorts {
		if !transport.IsSerialPathAllowed(path) {
			logger.Warn("serial port rejected by platform allowlist, skipping", zap.String("path", path))
			continue
		}

		t, err := transport.NewSerialTransport(path, cfg.BaudRate)
		if err != nil {
			logger.Warn("failed to open serial transport, skipping", zap.String("path", path), zap.Error(err))
			continue
		}

		if err := t.Ping(); err != nil {
			logger.Warn("serial device did not respond to ping handshake, skipping",
				zap.String("path", path), zap.Error(err))
			_ = t.Close()
			continue
		}

		caps := domaindevice.Capabilities{GPIO: true}
		if data, err := t.Send("capabilities", nil); err == nil {
			caps = domaindevice.CapabilitiesFromData(data)
		}

		boardName := boardNameFromPath(path)
		alias := registry.Register(domaindevice.Registration{
			BoardName:  boardName,
			DevicePath: path,
		})
		if err := registry.AttachTransport(alias, t, caps); err != nil {
			logger.Warn("failed to attach transport to registered device",
				zap.String("alias", alias), zap.Error(err))
			_ = t.Close()
			continue
		}

		logger.Info("device registered", zap.String("alias", alias), zap.String("path", path))
	}
}

// boardNameFromPath derives a board-name stem from a device path purely for
// alias-prefix purposes (e.g. "/dev/ttyACM0" -> "device-ttyacm0"); the
// device registry's alias derivation falls back to the generic "device"
// prefix for anything it doesn't recognize as a known board family.
func boardNameFromPath(path string) string {
	base := filepath.Base(path)
	return "device-" + strings.ToLower(base)
}
