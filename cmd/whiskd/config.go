package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the whiskd daemon.
//
// The config file is the primary configuration surface; flags override
// individual keys. Defaults and validation live here so the rest of the code
// can assume a well-formed config.
type Config struct {
	Progress  ProgressFileConfig  `yaml:"progress"`
	Gain      GainFileConfig      `yaml:"gain"`
	Deception DeceptionFileConfig `yaml:"deception"`
	Analytics AnalyticsFileConfig `yaml:"analytics"`
	Host      HostConfig          `yaml:"host"`
	Input     InputConfig         `yaml:"input"`
	IPC       IPCConfig           `yaml:"ipc"`
	Storage   StorageConfig       `yaml:"storage"`
	Logging   LoggingConfig       `yaml:"logging"`
}

type ProgressFileConfig struct {
	MaxProgress  float64 `yaml:"max_progress"`
	Sensitivity  float64 `yaml:"sensitivity"`
	DecayPerTick float64 `yaml:"decay_per_tick"`
}

type GainFileConfig struct {
	ResistanceMin         float64 `yaml:"resistance_min"`
	ResistanceMax         float64 `yaml:"resistance_max"`
	ResponsivenessInitial float64 `yaml:"responsiveness_initial"`
	ResponsivenessFinal   float64 `yaml:"responsiveness_final"`
	UpdateThreshold       float64 `yaml:"update_threshold"`
}

// DeceptionFileConfig is the YAML form of DeceptionConfig; durations are in milliseconds.
type DeceptionFileConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BandPercent       int     `yaml:"band_percent"`
	CooldownMS        int     `yaml:"cooldown_ms"`
	FreezeProbability float64 `yaml:"freeze_probability"`
	ForceFirstBand    bool    `yaml:"force_first_band"`
	TargetMinFraction float64 `yaml:"target_min_fraction"`
	TargetMaxFraction float64 `yaml:"target_max_fraction"`
	MinFreezeMS       int     `yaml:"min_freeze_ms"`
	MaxFreezeMS       int     `yaml:"max_freeze_ms"`
	FallbackMinMS     int     `yaml:"fallback_min_ms"`
	FallbackMaxMS     int     `yaml:"fallback_max_ms"`
	VelocityWindowMS  int     `yaml:"velocity_window_ms"`

	// Seed for the freeze scheduler; 0 draws one at startup.
	Seed uint64 `yaml:"seed"`
}

type AnalyticsFileConfig struct {
	Granularity          int  `yaml:"granularity"`
	DisplayedDimension   bool `yaml:"displayed_dimension"`
	DisplayedGranularity int  `yaml:"displayed_granularity"`
}

// HostConfig describes the host bridge and the orbit geometry of the dragged body.
type HostConfig struct {
	Listen      string  `yaml:"listen"`
	WSPath      string  `yaml:"ws_path"`
	UpdateHz    int     `yaml:"update_hz"`
	PivotX      float64 `yaml:"pivot_x"`
	PivotY      float64 `yaml:"pivot_y"`
	OrbitRadius float64 `yaml:"orbit_radius"`
}

type InputConfig struct {
	KeyboardDevices []string `yaml:"keyboard_devices,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
	Slot   string `yaml:"slot"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GeometryConfig locates the pivot the body orbits around.
type GeometryConfig struct {
	PivotX      float64
	PivotY      float64
	OrbitRadius float64
}

// EngineConfig is everything the reducer needs.
type EngineConfig struct {
	Progress  ProgressConfig
	Gain      GainConfig
	Deception DeceptionConfig
	Analytics AnalyticsConfig
	Geometry  GeometryConfig
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Progress: ProgressFileConfig{
			MaxProgress:  defaultMaxProgress,
			Sensitivity:  defaultSensitivity,
			DecayPerTick: defaultDecayPerTick,
		},
		Gain: GainFileConfig{
			ResistanceMin:         defaultResistanceMin,
			ResistanceMax:         defaultResistanceMax,
			ResponsivenessInitial: defaultResponsivenessInitial,
			ResponsivenessFinal:   defaultResponsivenessFinal,
			UpdateThreshold:       defaultPhysicsUpdateThreshold,
		},
		Deception: DeceptionFileConfig{
			Enabled:           true,
			BandPercent:       defaultBandPercent,
			CooldownMS:        defaultCooldownMS,
			FreezeProbability: defaultFreezeProbability,
			ForceFirstBand:    true,
			TargetMinFraction: defaultTargetMinFraction,
			TargetMaxFraction: defaultTargetMaxFraction,
			MinFreezeMS:       defaultMinFreezeMS,
			MaxFreezeMS:       defaultMaxFreezeMS,
			FallbackMinMS:     defaultFallbackMinMS,
			FallbackMaxMS:     defaultFallbackMaxMS,
			VelocityWindowMS:  defaultVelocityWindowMS,
		},
		Analytics: AnalyticsFileConfig{
			Granularity:          defaultGranularity,
			DisplayedDimension:   true,
			DisplayedGranularity: defaultDisplayedGranularity,
		},
		Host: HostConfig{
			Listen:      ":3001",
			WSPath:      "/ws",
			UpdateHz:    defaultUpdateHz,
			PivotX:      defaultPivotX,
			PivotY:      defaultPivotY,
			OrbitRadius: defaultOrbitRadius,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/whiskd.sock",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "~/.local/share/whiskd/journal.db",
			Slot:   "metricsLogs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that should win over the config file.
// Each override is applied only when its pointer is non-nil.
type FlagOverrides struct {
	Listen   *string
	UpdateHz *int

	DeceptionEnabled *bool
	Seed             *uint64

	KeyboardDevice *string

	IPCSocketPath *string

	StorageDriver *string
	StoragePath   *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Listen != nil {
		cfg.Host.Listen = *o.Listen
	}
	if o.UpdateHz != nil {
		cfg.Host.UpdateHz = *o.UpdateHz
	}
	if o.DeceptionEnabled != nil {
		cfg.Deception.Enabled = *o.DeceptionEnabled
	}
	if o.Seed != nil {
		cfg.Deception.Seed = *o.Seed
	}
	if o.KeyboardDevice != nil {
		cfg.Input.KeyboardDevices = []string{*o.KeyboardDevice}
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StorageDriver != nil {
		cfg.Storage.Driver = *o.StorageDriver
	}
	if o.StoragePath != nil {
		cfg.Storage.Path = *o.StoragePath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Progress
	if c.Progress.MaxProgress <= 0 {
		return errors.New("progress.max_progress must be > 0")
	}
	if c.Progress.Sensitivity <= 0 {
		return errors.New("progress.sensitivity must be > 0")
	}
	if c.Progress.DecayPerTick < 0 {
		return errors.New("progress.decay_per_tick must be >= 0")
	}

	// Gain
	if c.Gain.ResistanceMin < 0 || c.Gain.ResistanceMin > c.Gain.ResistanceMax {
		return errors.New("gain.resistance_min must be >= 0 and <= gain.resistance_max")
	}
	if c.Gain.ResponsivenessFinal < 0 || c.Gain.ResponsivenessFinal > c.Gain.ResponsivenessInitial {
		return errors.New("gain.responsiveness_final must be >= 0 and <= gain.responsiveness_initial")
	}
	if c.Gain.UpdateThreshold < 0 {
		return errors.New("gain.update_threshold must be >= 0")
	}

	// Deception
	d := c.Deception
	if d.BandPercent <= 0 || d.BandPercent > 100 {
		return errors.New("deception.band_percent must be between 1 and 100")
	}
	if d.CooldownMS < 0 {
		return errors.New("deception.cooldown_ms must be >= 0")
	}
	if d.FreezeProbability < 0 || d.FreezeProbability > 1 {
		return errors.New("deception.freeze_probability must be between 0 and 1")
	}
	if d.TargetMinFraction <= 0 || d.TargetMinFraction > d.TargetMaxFraction || d.TargetMaxFraction > 1 {
		return errors.New("deception.target_min_fraction must be > 0 and <= deception.target_max_fraction <= 1")
	}
	if d.MinFreezeMS <= 0 || d.MinFreezeMS > d.MaxFreezeMS {
		return errors.New("deception.min_freeze_ms must be > 0 and <= deception.max_freeze_ms")
	}
	if d.FallbackMinMS <= 0 || d.FallbackMinMS > d.FallbackMaxMS {
		return errors.New("deception.fallback_min_ms must be > 0 and <= deception.fallback_max_ms")
	}
	if d.VelocityWindowMS <= 0 {
		return errors.New("deception.velocity_window_ms must be > 0")
	}

	// Analytics
	if c.Analytics.Granularity <= 0 || c.Analytics.Granularity > 1000 {
		return errors.New("analytics.granularity must be between 1 and 1000")
	}
	if c.Analytics.DisplayedDimension && (c.Analytics.DisplayedGranularity <= 0 || c.Analytics.DisplayedGranularity > 1000) {
		return errors.New("analytics.displayed_granularity must be between 1 and 1000")
	}

	// Host
	if c.Host.Listen == "" {
		return errors.New("host.listen must not be empty")
	}
	if c.Host.WSPath == "" || c.Host.WSPath[0] != '/' {
		return errors.New("host.ws_path must start with /")
	}
	if c.Host.UpdateHz <= 0 || c.Host.UpdateHz > 1000 {
		return errors.New("host.update_hz must be between 1 and 1000")
	}
	if c.Host.OrbitRadius < 0 {
		return errors.New("host.orbit_radius must be >= 0")
	}

	// Input
	for i, dev := range c.Input.KeyboardDevices {
		if dev == "" {
			return fmt.Errorf("input.keyboard_devices[%d] is empty", i)
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Storage
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage.path must not be empty when storage.driver is sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be %q or %q", "sqlite", "memory")
	}
	if c.Storage.Slot == "" {
		return errors.New("storage.slot must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToEngineConfig converts file config into the reducer's engine config.
func (c *Config) ToEngineConfig() EngineConfig {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	return EngineConfig{
		Progress: ProgressConfig{
			MaxProgress:  c.Progress.MaxProgress,
			Sensitivity:  c.Progress.Sensitivity,
			DecayPerTick: c.Progress.DecayPerTick,
		},
		Gain: GainConfig{
			ResistanceMin:         c.Gain.ResistanceMin,
			ResistanceMax:         c.Gain.ResistanceMax,
			ResponsivenessInitial: c.Gain.ResponsivenessInitial,
			ResponsivenessFinal:   c.Gain.ResponsivenessFinal,
			UpdateThreshold:       c.Gain.UpdateThreshold,
		},
		Deception: DeceptionConfig{
			Enabled:           c.Deception.Enabled,
			BandPercent:       c.Deception.BandPercent,
			Cooldown:          ms(c.Deception.CooldownMS),
			FreezeProbability: c.Deception.FreezeProbability,
			ForceFirstBand:    c.Deception.ForceFirstBand,
			TargetMinFraction: c.Deception.TargetMinFraction,
			TargetMaxFraction: c.Deception.TargetMaxFraction,
			MinFreeze:         ms(c.Deception.MinFreezeMS),
			MaxFreeze:         ms(c.Deception.MaxFreezeMS),
			FallbackMin:       ms(c.Deception.FallbackMinMS),
			FallbackMax:       ms(c.Deception.FallbackMaxMS),
			VelocityWindow:    ms(c.Deception.VelocityWindowMS),
		},
		Analytics: AnalyticsConfig{
			Granularity:          c.Analytics.Granularity,
			DisplayedDimension:   c.Analytics.DisplayedDimension,
			DisplayedGranularity: c.Analytics.DisplayedGranularity,
		},
		Geometry: GeometryConfig{
			PivotX:      c.Host.PivotX,
			PivotY:      c.Host.PivotY,
			OrbitRadius: c.Host.OrbitRadius,
		},
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
