package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"media-vault/internal/logging"
	"media-vault/internal/startup"
)

// Plugin is a registered plugin. Generation increases every time its
// script file changes on disk.
type Plugin struct {
	Name       string
	Command    []string
	Path       string
	Args       map[string]any
	Generation int
	Disabled   bool
}

// Registry holds the registered plugins and the event bindings.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	events  map[string][]string
}

// NewRegistry builds a registry from configuration. Every plugin named in
// an event binding must be registered.
func NewRegistry(cfg startup.PluginsConfig) (*Registry, error) {
	r := &Registry{
		plugins: make(map[string]*Plugin, len(cfg.Registered)),
		events:  make(map[string][]string, len(cfg.Events)),
	}

	for name, pc := range cfg.Registered {
		p := &Plugin{
			Name:    name,
			Command: append([]string(nil), pc.Command...),
			Args:    pc.Args,
		}
		if pc.Path != "" {
			abs, err := filepath.Abs(pc.Path)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: %w", name, err)
			}
			p.Path = abs
			if _, err := os.Stat(abs); err != nil {
				logging.Warn("Plugin %s script %s not found, plugin disabled until it appears", name, abs)
				p.Disabled = true
			}
		}
		r.plugins[name] = p
	}

	for event, names := range cfg.Events {
		for _, name := range names {
			if _, ok := r.plugins[name]; !ok {
				return nil, fmt.Errorf("event %s references unknown plugin %q", event, name)
			}
		}
		r.events[event] = append([]string(nil), names...)
	}

	return r, nil
}

// ForEvent returns snapshots of the enabled plugins bound to event, in
// configured order.
func (r *Registry) ForEvent(event string) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plugin
	for _, name := range r.events[event] {
		p := r.plugins[name]
		if p == nil || p.Disabled {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Get returns a snapshot of the named plugin.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return Plugin{}, false
	}
	return *p, true
}

// Names lists registered plugins alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// watchedPaths maps each script path to the plugins that use it.
func (r *Registry) watchedPaths() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string)
	for name, p := range r.plugins {
		if p.Path != "" {
			out[p.Path] = append(out[p.Path], name)
		}
	}
	return out
}

// reload re-checks a plugin's script and bumps its generation.
func (r *Registry) reload(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[name]
	if !ok {
		return
	}
	if _, err := os.Stat(p.Path); err != nil {
		if !p.Disabled {
			logging.Warn("Plugin %s script %s disappeared, disabling", name, p.Path)
		}
		p.Disabled = true
		return
	}
	p.Disabled = false
	p.Generation++
	logging.Info("Plugin %s reloaded (generation %d)", name, p.Generation)
}
