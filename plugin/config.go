package plugin

import (
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
)

// Config is the bridge configuration file.
//
//	[bridge]
//	handle_policy = "strict"
//
//	[plugins.wasm]
//	kind = "wasm"
//	modules = { add = "testdata/add.wasm" }
type Config struct {
	Plugins map[string]PluginConfig `toml:"plugins"`
	Bridge  BridgeConfig            `toml:"bridge"`
}

// BridgeConfig holds settings of the core.
type BridgeConfig struct {
	HandlePolicy string `toml:"handle_policy"`
}

// PluginConfig describes one plugin. Kind selects the constructor; the
// remaining fields are read by the constructors that need them.
type PluginConfig struct {
	Modules          map[string]string `toml:"modules"`
	Kind             string            `toml:"kind"`
	Network          string            `toml:"network"`
	Address          string            `toml:"address"`
	MemoryLimitPages uint32            `toml:"memory_limit_pages"`
}

// Constructor builds a factory for a plugin of one kind.
type Constructor func(name string, cfg PluginConfig) (Factory, error)

// LoadConfig reads and parses a TOML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, fmt.Sprintf("cannot read %s", path))
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses TOML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse error")
	}
	if _, err := cfg.Policy(); err != nil {
		return nil, err
	}
	for name, pc := range cfg.Plugins {
		if pc.Kind == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, "plugin "+name+" has no kind")
		}
	}
	return &cfg, nil
}

// Policy returns the configured handle policy.
func (c *Config) Policy() (handle.Policy, error) {
	p, err := handle.ParsePolicy(c.Bridge.HandlePolicy)
	if err != nil {
		return p, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "bridge.handle_policy")
	}
	return p, nil
}

// Apply registers a factory for every configured plugin, in name order,
// using the constructor registered for its kind.
func (c *Config) Apply(reg *Registry, kinds map[string]Constructor) error {
	names := make([]string, 0, len(c.Plugins))
	for name := range c.Plugins {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		pc := c.Plugins[name]
		ctor, ok := kinds[pc.Kind]
		if !ok {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("plugin %s: unknown kind %q", name, pc.Kind))
		}
		f, err := ctor(name, pc)
		if err != nil {
			if errors.KindOf(err) != "" {
				return errors.WithPhase(err, errors.PhaseConfig)
			}
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "plugin "+name)
		}
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}
