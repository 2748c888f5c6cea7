// Package config loads the static configuration spec.md §4.6 requires
// the core to be handed: service/instance identity, quality levels,
// allowed-consumer UID lists, queue sizes, and the tracing flags. The
// core treats this package's output as read-only input; validation
// that would otherwise let an inconsistent configuration reach the
// core (duplicate service-type entries, duplicate event ids, event/
// field id collisions) happens here, before construction.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath and DefaultTraceFilterPath mirror spec.md §6.
const (
	DefaultConfigPath       = "./etc/mw_com_config.json"
	DefaultTraceFilterPath  = "./etc/mw_com_trace_filter.json"
	DefaultShmSizingPolicy  = "simulation"
)

// QualityUIDs lists the consumer UIDs allowed to find/subscribe at each
// quality level.
type QualityUIDs struct {
	AsilB  []uint32 `yaml:"asil_b"`
	AsilQM []uint32 `yaml:"asil_qm"`
}

// InstanceConfig describes one configured service instance.
type InstanceConfig struct {
	ServiceID      uint16            `yaml:"service_id"`
	InstanceID     *uint16           `yaml:"instance_id,omitempty"`
	Quality        string            `yaml:"quality"`
	Events         map[string]uint16 `yaml:"events,omitempty"`
	Fields         map[string]uint16 `yaml:"fields,omitempty"`
	Methods        map[string]uint16 `yaml:"methods,omitempty"`
	AllowedUIDs    QualityUIDs       `yaml:"allowed_uids"`
	MaxSubscribers int               `yaml:"max_subscribers"`
	QueueSizes     map[string]int    `yaml:"queue_sizes,omitempty"`
	ShmSizing      string            `yaml:"shm_sizing,omitempty"`
}

// TracingConfig carries the tracing enable flag and filter-config path;
// the core never parses the filter file itself (spec.md §1: tracing
// plumbing is out of scope for the core).
type TracingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	FilterPath string `yaml:"filter_path"`
}

// Config is the full, validated configuration handed to the runtime.
type Config struct {
	Root      string           `yaml:"root"`
	Instances []InstanceConfig `yaml:"instances"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

// Load reads and validates the configuration at path. JSON is a valid
// YAML 1.2 subset, so decoding the configured .json file with yaml.v3
// round-trips correctly -- this keeps the config loader on yaml.v3
// instead of switching to encoding/json just because the file
// extension says ".json".
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Root == "" {
		return nil, fmt.Errorf("config: %s: root is required", path)
	}
	if cfg.Tracing.FilterPath == "" {
		cfg.Tracing.FilterPath = DefaultTraceFilterPath
	}
	for i := range cfg.Instances {
		if cfg.Instances[i].ShmSizing == "" {
			cfg.Instances[i].ShmSizing = DefaultShmSizingPolicy
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects the configuration conditions spec.md §4.6 requires
// the configuration layer to catch before the core starts.
func validate(cfg *Config) error {
	type serviceKey struct {
		service  uint16
		instance uint16
		hasInst  bool
	}
	seenServices := make(map[serviceKey]bool)

	for _, inst := range cfg.Instances {
		key := serviceKey{service: inst.ServiceID}
		if inst.InstanceID != nil {
			key.instance = *inst.InstanceID
			key.hasInst = true
		}
		if seenServices[key] {
			return fmt.Errorf("config: duplicate service-type entry for service_id=%d", inst.ServiceID)
		}
		seenServices[key] = true

		if inst.Quality != "ASIL_B" && inst.Quality != "ASIL_QM" {
			return fmt.Errorf("config: service_id=%d: invalid quality %q", inst.ServiceID, inst.Quality)
		}

		seenIDs := make(map[uint16]string)
		checkDup := func(kind string, ids map[string]uint16) error {
			for name, id := range ids {
				if other, exists := seenIDs[id]; exists {
					return fmt.Errorf("config: service_id=%d: id %d used by both %s and %s:%s",
						inst.ServiceID, id, other, kind, name)
				}
				seenIDs[id] = kind + ":" + name
			}
			return nil
		}
		if err := checkDup("event", inst.Events); err != nil {
			return err
		}
		if err := checkDup("field", inst.Fields); err != nil {
			return err
		}
		if err := checkDup("method", inst.Methods); err != nil {
			return err
		}
	}
	return nil
}
