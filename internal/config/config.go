// Package config defines the cellsentry service configuration.
//
// Configuration is a single yaml document. Missing sections fall back
// to defaults, so an empty file is a valid configuration.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// CaptureDir is the directory holding capture logs, analysis
	// output files and the store manifest.
	CaptureDir string `yaml:"capture_dir"`

	// ListenAddr is the address of the HTTP control surface.
	ListenAddr string `yaml:"listen_addr"`

	Verbose bool `yaml:"verbose"`

	Analyzers Analyzers  `yaml:"analyzers"`
	Schedule  *Schedule  `yaml:"schedule,omitempty"`
	Reporting *Reporting `yaml:"reporting,omitempty"`
}

// Analyzers toggles the built-in detection heuristics.
type Analyzers struct {
	IMSIRequest bool `yaml:"imsi_request"`
	NullCipher  bool `yaml:"null_cipher"`
}

// Schedule triggers a periodic "analyze all eligible captures" run.
type Schedule struct {
	Cron string `yaml:"cron"` // five-field cron expression or @macro
}

// Reporting delivers analysis files with warnings to a directory, a
// remote collector, or both. With neither destination set, reports go
// to stdout.
type Reporting struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
	URL     string `yaml:"url,omitempty"`
}

func Default() Config {
	return Config{
		CaptureDir: "/var/lib/cellsentry/captures",
		ListenAddr: "127.0.0.1:8080",
		Analyzers: Analyzers{
			IMSIRequest: true,
			NullCipher:  true,
		},
	}
}

// Load parses yaml from r on top of the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path, falling back to defaults when it does not exist.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Save writes the configuration as yaml to w.
func (c Config) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

func (c Config) validate() error {
	if c.CaptureDir == "" {
		return fmt.Errorf("capture_dir must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}
