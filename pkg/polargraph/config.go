package polargraph

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/pattern"
)

const DefaultConfigFile = "polargraph.json"

// Config holds the plotter configuration
type Config struct {
	Port     string   `json:"port"`
	BaudRate int      `json:"baud_rate"`
	Driver   string   `json:"driver,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"` // per request to the firmware

	// Strict refuses to run firmware that does not identify as link.ProtocolVersion
	Strict bool `json:"strict,omitempty"`

	Geometry     kinematics.Config `json:"geometry"`
	Speed        float64           `json:"speed"`        // [mm/s]
	Acceleration float64           `json:"acceleration"` // [mm/s²], 0 keeps the firmware default

	Scan ScanConfig `json:"scan"`
}

// ScanConfig holds the scan pattern and region
type ScanConfig struct {
	Pattern      string         `json:"pattern"`
	Region       pattern.Region `json:"region"`
	PollInterval Duration       `json:"poll_interval"`
}

// Duration is a time.Duration written as a string such as "20ms"
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns the configuration of the reference build
func DefaultConfig() *Config {
	g := kinematics.DefaultConfig()
	return &Config{
		BaudRate: 115200,
		Driver:   link.DriverBugst,
		Timeout:  Duration(time.Second),
		Geometry: g,
		Speed:    100,
		Scan: ScanConfig{
			Pattern:      pattern.KindRaster,
			Region:       pattern.DefaultRegion(g.Y0),
			PollInterval: Duration(20 * time.Millisecond),
		},
	}
}

// Validate checks the geometry, speed and scan region
func (c *Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %g", c.Speed)
	}
	_, err := c.Pattern()
	return err
}

// Link returns the serial link settings
func (c *Config) Link() link.Config {
	lc := link.DefaultConfig(c.Port)
	if c.BaudRate > 0 {
		lc.BaudRate = c.BaudRate
	}
	if c.Driver != "" {
		lc.Driver = c.Driver
	}
	if c.Timeout > 0 {
		lc.Timeout = time.Duration(c.Timeout)
	}
	return lc
}

// Pattern builds the configured scan pattern. The region's home height
// always follows the geometry.
func (c *Config) Pattern() (pattern.Pattern, error) {
	region := c.Scan.Region
	region.Y0 = c.Geometry.Y0
	return pattern.New(c.Scan.Pattern, region, c.Geometry.Ell)
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Missing fields
// keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
