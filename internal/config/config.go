// Package config loads the simulator's flat configuration record: an
// explicit-path-then-search-path resolver feeding a single
// gopkg.in/yaml.v3 Unmarshal, followed by an explicit validation pass.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rosdevs/pdevs-sim/internal/model"
)

// DefaultSearchPaths returns the config file search order: an explicit
// path (from -config) is checked first by FindConfig; absent that,
// ./rosdevs.yaml, ~/.config/rosdevs/rosdevs.yaml, then
// /etc/rosdevs/rosdevs.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"rosdevs.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rosdevs", "rosdevs.yaml"))
	}
	paths = append(paths, "/etc/rosdevs/rosdevs.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty it must
// exist. Otherwise DefaultSearchPaths is searched in order and the
// first existing path is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config is the simulator's flat configuration record.
type Config struct {
	DomainID int `yaml:"domain_id"`

	Executor ExecutorConfig `yaml:"executor"`

	Serializer SerializerConfig `yaml:"serializer"`

	Transport TransportConfig `yaml:"transport"`

	// RealTimeSimulation, when true, causes modeled latencies to
	// elapse in wall-clock time via the real-time overlay hook
	// (internal/devs's coordinator does not itself sleep; internal/sim
	// installs the overlay as the coordinator's OnAdvance hook, which
	// sleeps for each virtual-time advance made by Step).
	RealTimeSimulation bool `yaml:"real_time_simulation"`

	QoS QoSDefaultsConfig `yaml:"qos"`

	LogLevel string `yaml:"log_level"`
}

// ExecutorConfig configures the UCL spin loop.
type ExecutorConfig struct {
	SpinPeriodUS int64 `yaml:"spin_period_us"`
}

// SerializerConfig selects the cost table format key (internal/registry).
type SerializerConfig struct {
	Format string `yaml:"format"`
}

// TransportConfig configures the transport multiplexer's default kind
// for peers that are not co-located.
type TransportConfig struct {
	DefaultKind string `yaml:"default_kind"`
}

// QoSDefaultsConfig overrides the built-in QoS defaults (model.Defaults).
type QoSDefaultsConfig struct {
	Reliability string `yaml:"reliability"`
	Durability  string `yaml:"durability"`
	History     string `yaml:"history"`
	Depth       uint   `yaml:"depth"`
	DeadlineMS  int64  `yaml:"deadline_ms"`
	LifespanMS  int64  `yaml:"lifespan_ms"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		DomainID: 0,
		Executor: ExecutorConfig{SpinPeriodUS: 10_000},
		Serializer: SerializerConfig{Format: "cdr"},
		Transport: TransportConfig{DefaultKind: "UDP"},
		RealTimeSimulation: false,
		QoS: QoSDefaultsConfig{
			Reliability: string(model.Reliable),
			Durability:  string(model.Volatile),
			History:     string(model.KeepLast),
			Depth:       10,
			DeadlineMS:  model.DeadlineInfinite,
			LifespanMS:  model.LifespanInfinite,
		},
		LogLevel: "info",
	}
}

// Load reads and unmarshals path over Default, then validates the
// result. A validation failure (ConfigInvalid) is detected at init
// and fatal.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return cfg, nil
}

// ErrConfigInvalid wraps every validation failure Validate reports, so
// callers can distinguish class 6 (ConfigInvalid) from a read/parse
// error with errors.Is.
var ErrConfigInvalid = fmt.Errorf("config invalid")

// Validate range-checks a Config. Out-of-range values are fatal at
// init; nothing downstream re-validates.
func Validate(cfg Config) error {
	if cfg.DomainID < 0 || cfg.DomainID > 232 {
		return fmt.Errorf("domain_id %d out of range [0,232]", cfg.DomainID)
	}
	if cfg.Executor.SpinPeriodUS <= 0 {
		return fmt.Errorf("executor.spin_period_us must be positive, got %d", cfg.Executor.SpinPeriodUS)
	}
	switch cfg.Transport.DefaultKind {
	case "INTRAPROCESS", "SHMEM", "UDP", "TCP":
	default:
		return fmt.Errorf("transport.default_kind %q not one of INTRAPROCESS, SHMEM, UDP, TCP", cfg.Transport.DefaultKind)
	}
	switch model.Reliability(cfg.QoS.Reliability) {
	case model.Reliable, model.BestEffort:
	default:
		return fmt.Errorf("qos.reliability %q not RELIABLE or BEST_EFFORT", cfg.QoS.Reliability)
	}
	switch model.Durability(cfg.QoS.Durability) {
	case model.Volatile, model.TransientLocal, model.Transient, model.Persistent:
	default:
		return fmt.Errorf("qos.durability %q not a recognized durability", cfg.QoS.Durability)
	}
	return nil
}

// DefaultQoS converts the config's QoS defaults section into a
// model.QoS, for internal/mw to use in place of model.Defaults when a
// simulation overrides the built-in defaults.
func (c Config) DefaultQoS() model.QoS {
	return model.QoS{
		Reliability: model.Reliability(c.QoS.Reliability),
		Durability:  model.Durability(c.QoS.Durability),
		History:     model.History(c.QoS.History),
		Depth:       c.QoS.Depth,
		DeadlineMS:  c.QoS.DeadlineMS,
		LifespanMS:  c.QoS.LifespanMS,
	}
}
