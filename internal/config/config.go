package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/sensor"
	"github.com/banshee-data/gesture.auth/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical defaults file.
// This is the single source of truth for all default values.
const DefaultConfigPath = "config/gesture.defaults.json"

// Config is the daemon configuration file. Every field is optional; the
// Get* methods fall back to the built-in defaults.
type Config struct {
	// Engine params
	CaptureDuration      *string  `json:"capture_duration,omitempty" yaml:"capture_duration,omitempty"` // duration string like "4s"
	TrajectoryLength     *int     `json:"trajectory_length,omitempty" yaml:"trajectory_length,omitempty"`
	RegistrationSamples  *int     `json:"registration_samples,omitempty" yaml:"registration_samples,omitempty"`
	VerificationAttempts *int     `json:"verification_attempts,omitempty" yaml:"verification_attempts,omitempty"`
	Quorum               *int     `json:"quorum,omitempty" yaml:"quorum,omitempty"`
	Threshold            *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Epsilon              *float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
	Band                 *int     `json:"band,omitempty" yaml:"band,omitempty"`
	MinUsernameLength    *int     `json:"min_username_length,omitempty" yaml:"min_username_length,omitempty"`

	// Sensor params
	SensorRateHz *int `json:"sensor_rate_hz,omitempty" yaml:"sensor_rate_hz,omitempty"`
	SerialBaud   *int `json:"serial_baud,omitempty" yaml:"serial_baud,omitempty"`

	// Simulated sensor params (-dev)
	SimPattern *string  `json:"sim_pattern,omitempty" yaml:"sim_pattern,omitempty"`
	SimPeriod  *string  `json:"sim_period,omitempty" yaml:"sim_period,omitempty"` // duration string like "2s"
	SimNoise   *float64 `json:"sim_noise,omitempty" yaml:"sim_noise,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON or YAML file, chosen by extension
// (.json, .yaml or .yml). The file must be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	var unmarshal func([]byte, any) error
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefaultConfig loads DefaultConfigPath relative to the working
// directory, then relative to the directory holding the executable and its
// parent. It returns the path it loaded. The error wraps os.ErrNotExist when
// no candidate exists.
func LoadDefaultConfig() (*Config, string, error) {
	candidates := []string{DefaultConfigPath}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, DefaultConfigPath),
			filepath.Join(dir, "..", DefaultConfigPath),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadConfig(path)
		return cfg, path, err
	}
	return nil, "", fmt.Errorf("%s: %w", DefaultConfigPath, os.ErrNotExist)
}

// Validate checks the fields that are set, then checks that the resulting
// engine settings are coherent.
func (c *Config) Validate() error {
	for name, d := range map[string]*string{"capture_duration": c.CaptureDuration, "sim_period": c.SimPeriod} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}

	if c.SimPattern != nil {
		if _, err := sensor.ParsePattern(*c.SimPattern); err != nil {
			return err
		}
	}
	if c.SimNoise != nil && (*c.SimNoise < 0 || *c.SimNoise > 1) {
		return fmt.Errorf("sim_noise must be between 0 and 1, got %f", *c.SimNoise)
	}
	if c.SensorRateHz != nil && *c.SensorRateHz <= 0 {
		return fmt.Errorf("sensor_rate_hz must be positive, got %d", *c.SensorRateHz)
	}
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}

	return c.ToAuthConfig().Validate()
}

// ToAuthConfig resolves the engine settings.
func (c *Config) ToAuthConfig() auth.Config {
	return auth.Config{
		CaptureDuration:      c.GetCaptureDuration(),
		TrajectoryLength:     c.GetTrajectoryLength(),
		RegistrationSamples:  c.GetRegistrationSamples(),
		VerificationAttempts: c.GetVerificationAttempts(),
		Quorum:               c.GetQuorum(),
		Threshold:            c.GetThreshold(),
		Epsilon:              c.GetEpsilon(),
		Band:                 c.GetBand(),
		MinUsernameLength:    c.GetMinUsernameLength(),
	}
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat64(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetCaptureDuration returns the capture window as a time.Duration.
func (c *Config) GetCaptureDuration() time.Duration {
	return parseDuration(c.CaptureDuration, auth.DefaultConfig().CaptureDuration)
}

func (c *Config) GetTrajectoryLength() int {
	return getInt(c.TrajectoryLength, auth.DefaultConfig().TrajectoryLength)
}

func (c *Config) GetRegistrationSamples() int {
	return getInt(c.RegistrationSamples, auth.DefaultConfig().RegistrationSamples)
}

func (c *Config) GetVerificationAttempts() int {
	return getInt(c.VerificationAttempts, auth.DefaultConfig().VerificationAttempts)
}

func (c *Config) GetQuorum() int {
	return getInt(c.Quorum, auth.DefaultConfig().Quorum)
}

// GetThreshold returns the DTW match threshold. It is calibrated per
// deployment from the auth_attempts audit table.
func (c *Config) GetThreshold() float64 {
	return getFloat64(c.Threshold, auth.DefaultConfig().Threshold)
}

func (c *Config) GetEpsilon() float64 {
	return getFloat64(c.Epsilon, auth.DefaultConfig().Epsilon)
}

func (c *Config) GetBand() int {
	return getInt(c.Band, auth.DefaultConfig().Band)
}

func (c *Config) GetMinUsernameLength() int {
	return getInt(c.MinUsernameLength, auth.DefaultConfig().MinUsernameLength)
}

// GetSensorRateHz returns the accelerometer sample rate requested from the
// board.
func (c *Config) GetSensorRateHz() int {
	return getInt(c.SensorRateHz, 50)
}

func (c *Config) GetSerialBaud() int {
	return getInt(c.SerialBaud, serialmux.DefaultBaudRate)
}

// GetSimPattern returns the simulated gesture shape. An invalid name falls
// back to the circle.
func (c *Config) GetSimPattern() sensor.Pattern {
	if c.SimPattern == nil {
		return sensor.PatternCircle
	}
	p, err := sensor.ParsePattern(*c.SimPattern)
	if err != nil {
		return sensor.PatternCircle
	}
	return p
}

// GetSimPeriod returns how long the simulated hand takes to trace the
// pattern once.
func (c *Config) GetSimPeriod() time.Duration {
	return parseDuration(c.SimPeriod, 2*time.Second)
}

func (c *Config) GetSimNoise() float64 {
	return getFloat64(c.SimNoise, 0.02)
}
