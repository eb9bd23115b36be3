package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
	"github.com/zeroclaw/gateway/pkg/safego"
)

// LoadedPlugin is a plugin currently registered with the tool registry.
type LoadedPlugin struct {
	Manifest Manifest
	Path     string
	LoadedAt time.Time
}

// Loader discovers subprocess plugins under one or more root directories,
// registers each as a domaintool.Tool, and optionally watches for manifest
// changes to hot-reload them.
//
// Grounded on the teacher's fsnotify-based hot-reload loader; the in-process
// Plugin/PluginFactory abstraction it used is replaced with the subprocess
// invocation contract in subprocess.go.
type Loader struct {
	roots    []string
	registry domaintool.Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	plugins map[string]*LoadedPlugin

	watcher *fsnotify.Watcher
}

// NewLoader creates a plugin loader over the given root directories.
// watchForReload enables an fsnotify watcher over each root so that
// adding, editing, or removing a manifest file live-updates the registry.
func NewLoader(roots []string, registry domaintool.Registry, watchForReload bool, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loader{
		roots:    roots,
		registry: registry,
		logger:   logger,
		plugins:  make(map[string]*LoadedPlugin),
	}

	if watchForReload {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create plugin watcher: %w", err)
		}
		l.watcher = watcher
	}

	return l, nil
}

// LoadAll scans every root for plugin subdirectories (each containing one of
// the manifest files listed in manifestNames) and registers a tool for each one found.
// A single bad manifest is logged and skipped; it never aborts the scan.
func (l *Loader) LoadAll(ctx context.Context) error {
	for _, root := range l.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read plugin root %s: %w", root, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(root, entry.Name())
			if err := l.Load(ctx, pluginDir); err != nil {
				l.logger.Error("failed to load plugin",
					zap.String("path", pluginDir), zap.Error(err))
			}
		}
	}
	return nil
}

// Load reads the manifest at pluginDir and registers the plugin tool it
// declares.
func (l *Loader) Load(ctx context.Context, pluginDir string) error {
	manifest, err := LoadManifest(pluginDir)
	if err != nil {
		return err
	}

	binary := manifest.Exec.Binary
	if !filepath.IsAbs(binary) {
		binary = filepath.Join(pluginDir, binary)
	}

	wrapped := &subprocessTool{manifest: manifest, binary: binary}

	l.mu.Lock()
	if _, exists := l.plugins[manifest.Tool.Name]; exists {
		l.mu.Unlock()
		return l.reload(ctx, pluginDir, manifest, wrapped)
	}
	l.plugins[manifest.Tool.Name] = &LoadedPlugin{Manifest: *manifest, Path: pluginDir, LoadedAt: time.Now()}
	l.mu.Unlock()

	if err := l.registry.Register(wrapped); err != nil {
		return fmt.Errorf("register plugin tool %s: %w", manifest.Tool.Name, err)
	}

	l.logger.Info("plugin loaded",
		zap.String("name", manifest.Tool.Name),
		zap.String("version", manifest.Tool.Version),
		zap.String("path", pluginDir))
	return nil
}

// reload replaces an already-registered plugin's tool definition in place.
func (l *Loader) reload(ctx context.Context, pluginDir string, manifest *Manifest, wrapped domaintool.Tool) error {
	_ = l.registry.Unregister(manifest.Tool.Name)
	if err := l.registry.Register(wrapped); err != nil {
		return fmt.Errorf("re-register plugin tool %s: %w", manifest.Tool.Name, err)
	}
	l.mu.Lock()
	l.plugins[manifest.Tool.Name] = &LoadedPlugin{Manifest: *manifest, Path: pluginDir, LoadedAt: time.Now()}
	l.mu.Unlock()
	l.logger.Info("plugin reloaded", zap.String("name", manifest.Tool.Name), zap.String("path", pluginDir))
	return nil
}

// Unload removes a plugin's tool from the registry.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	if _, exists := l.plugins[name]; !exists {
		l.mu.Unlock()
		return fmt.Errorf("plugin not found: %s", name)
	}
	delete(l.plugins, name)
	l.mu.Unlock()

	if err := l.registry.Unregister(name); err != nil {
		return err
	}
	l.logger.Info("plugin unloaded", zap.String("name", name))
	return nil
}

// List returns the manifests of every currently loaded plugin.
func (l *Loader) List() []Manifest {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Manifest, 0, len(l.plugins))
	for _, p := range l.plugins {
		out = append(out, p.Manifest)
	}
	return out
}

// StartWatching begins watching every plugin root for manifest changes. A
// no-op if the loader was built without hot-reload enabled.
func (l *Loader) StartWatching(ctx context.Context) error {
	if l.watcher == nil {
		return nil
	}
	for _, root := range l.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("ensure plugin root %s: %w", root, err)
		}
		if err := l.watcher.Add(root); err != nil {
			return fmt.Errorf("watch plugin root %s: %w", root, err)
		}
	}

	safego.Go(l.logger, "plugin-watcher", func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-l.watcher.Events:
				if !ok {
					return
				}
				l.handleWatchEvent(ctx, event)
			case err, ok := <-l.watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("plugin watcher error", zap.Error(err))
			}
		}
	})

	l.logger.Info("plugin hot-reload watching started", zap.Strings("roots", l.roots))
	return nil
}

func (l *Loader) handleWatchEvent(ctx context.Context, event fsnotify.Event) {
	base := filepath.Base(event.Name)
	known := false
	for _, name := range manifestNames {
		if base == name {
			known = true
			break
		}
	}
	if !known {
		return
	}

	pluginDir := filepath.Dir(event.Name)
	pluginName := filepath.Base(pluginDir)

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if err := l.Load(ctx, pluginDir); err != nil {
			l.logger.Error("plugin hot-reload failed", zap.String("plugin", pluginName), zap.Error(err))
		}
	case event.Op&fsnotify.Remove != 0:
		if err := l.Unload(pluginName); err != nil {
			l.logger.Warn("plugin hot-unload failed", zap.String("plugin", pluginName), zap.Error(err))
		}
	}
}

// Close releases the loader's watcher, if any.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// subprocessTool adapts a plugin manifest into a domaintool.Tool, invoking
// the declared binary on every Execute call.
type subprocessTool struct {
	manifest *Manifest
	binary   string
}

func (t *subprocessTool) Name() string        { return t.manifest.Tool.Name }
func (t *subprocessTool) Description() string { return t.manifest.Tool.Description }
func (t *subprocessTool) Kind() domaintool.Kind { return domaintool.KindExecute }

func (t *subprocessTool) Schema() map[string]interface{} {
	return t.manifest.Schema()
}

func (t *subprocessTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	return Invoke(ctx, t.binary, args)
}
