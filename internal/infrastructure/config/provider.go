package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/events"
)

// Change describes one updated setting.
type Change struct {
	Section  string
	Key      string
	OldValue any
	NewValue any
	Source   string
}

// Provider is a sectioned key/value view of the configuration that can be
// overlaid from files and changed at runtime. Subscribers are told about
// every changed key.
type Provider struct {
	mu      sync.RWMutex
	values  map[string]map[string]any
	changes *events.Bus[Change]
}

// NewProvider seeds a provider from cfg. A nil cfg uses Default.
func NewProvider(cfg *Config, logger *zap.Logger) *Provider {
	if cfg == nil {
		cfg = Default()
	}
	return &Provider{
		values:  sections(cfg),
		changes: events.NewBus[Change]("config", logger),
	}
}

func sections(cfg *Config) map[string]map[string]any {
	return map[string]map[string]any{
		"terminal": {
			"maxTerminals":    cfg.Terminal.MaxTerminals,
			"shell":           cfg.Terminal.Shell,
			"cwd":             cfg.Terminal.Cwd,
			"cols":            cfg.Terminal.Cols,
			"rows":            cfg.Terminal.Rows,
			"scrollbackLines": cfg.Terminal.ScrollbackLines,
		},
		"buffer": {
			"flushInterval":       cfg.Buffer.FlushInterval,
			"agentFlushInterval":  cfg.Buffer.AgentFlushInterval,
			"immediateFlushBytes": cfg.Buffer.ImmediateFlushBytes,
			"maxChunks":           cfg.Buffer.MaxChunks,
			"maxBytes":            cfg.Buffer.MaxBytes,
		},
		"session": {
			"enabled":           cfg.Session.Enabled,
			"scrollbackEnabled": cfg.Session.ScrollbackEnabled,
			"autosaveDelay":     cfg.Session.AutosaveDelay,
		},
		"logging": {
			"level": cfg.Logging.Level,
		},
	}
}

// OnChange subscribes fn to setting changes. The returned function
// unsubscribes.
func (p *Provider) OnChange(fn func(Change)) func() {
	return p.changes.Subscribe(fn)
}

// Get returns the value of section.key, or def when unset.
func (p *Provider) Get(section, key string, def any) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[section][key]; ok {
		return v
	}
	return def
}

// GetString returns section.key as a string.
func (p *Provider) GetString(section, key, def string) string {
	switch v := p.Get(section, key, def).(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return def
	}
}

// GetInt returns section.key as an int. Numeric strings are parsed.
func (p *Provider) GetInt(section, key string, def int) int {
	if n, ok := toInt(p.Get(section, key, def)); ok {
		return n
	}
	return def
}

// GetBool returns section.key as a bool.
func (p *Provider) GetBool(section, key string, def bool) bool {
	switch v := p.Get(section, key, def).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// GetDuration returns section.key as a duration. Strings are parsed with
// time.ParseDuration and bare numbers are milliseconds.
func (p *Provider) GetDuration(section, key string, def time.Duration) time.Duration {
	switch v := p.Get(section, key, def).(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		return def
	default:
		if n, ok := toInt(v); ok {
			return time.Duration(n) * time.Millisecond
		}
		return def
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// Set updates one setting and notifies subscribers if it changed.
func (p *Provider) Set(section, key string, value any) {
	p.apply(map[string]map[string]any{section: {key: value}}, "set")
}

// LoadFile overlays settings from a YAML or TOML file, chosen by
// extension. Top-level tables are sections.
func (p *Provider) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		return fmt.Errorf("config file %s: unsupported format", path)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	overlay := make(map[string]map[string]any, len(raw))
	for section, v := range raw {
		table, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("config file %s: %q is not a table", path, section)
		}
		overlay[section] = table
	}
	p.apply(overlay, path)
	return nil
}

func (p *Provider) apply(overlay map[string]map[string]any, source string) {
	var changes []Change
	p.mu.Lock()
	for _, section := range sortedKeys(overlay) {
		table := overlay[section]
		current, ok := p.values[section]
		if !ok {
			current = make(map[string]any, len(table))
			p.values[section] = current
		}
		for _, key := range sortedKeys(table) {
			next := table[key]
			old, existed := current[key]
			if existed && reflect.DeepEqual(old, next) {
				continue
			}
			current[key] = next
			changes = append(changes, Change{Section: section, Key: key, OldValue: old, NewValue: next, Source: source})
		}
	}
	p.mu.Unlock()

	for _, c := range changes {
		p.changes.Publish(c)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
