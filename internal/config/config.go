package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResourceDirEnv names the environment variable consulted when no resource
// directory is configured.
const ResourceDirEnv = "TLJ_RESOURCE_DIR"

// Config holds all configurable paths and extraction settings.
type Config struct {
	// Paths
	ResourceDir string `json:"resource_dir" yaml:"resource_dir"`
	BundleDir   string `json:"bundle_dir" yaml:"bundle_dir"`
	ExtractDir  string `json:"extract_dir" yaml:"extract_dir"`
	OutputDir   string `json:"output_dir" yaml:"output_dir"`
	Manifest    string `json:"manifest" yaml:"manifest"`

	// Extraction settings
	Location       string `json:"location" yaml:"location"`
	TextureFormat  string `json:"texture_format" yaml:"texture_format"`
	Workers        int    `json:"workers" yaml:"workers"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	LightInference *bool  `json:"light_inference" yaml:"light_inference"`
}

// Load reads a JSON or YAML config file, picked by extension, and returns
// Config. Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	ResourceDir   string
	OutputDir     string
	Location      string
	TextureFormat string
	Workers       int
	LogLevel      string
	NoLights      bool
}

// Resolve fills in any empty fields with defaults.
// CLI flags take priority when non-zero/non-empty.
func (c *Config) Resolve(flags Flags) {
	// CLI flags override config file
	if flags.ResourceDir != "" {
		c.ResourceDir = flags.ResourceDir
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Location != "" {
		c.Location = flags.Location
	}
	if flags.TextureFormat != "" {
		c.TextureFormat = flags.TextureFormat
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.NoLights {
		off := false
		c.LightInference = &off
	}

	if c.ResourceDir == "" {
		c.ResourceDir = os.Getenv(ResourceDirEnv)
	}
	if c.ResourceDir == "" {
		c.ResourceDir = detectResourceDir()
	}

	// bundles sit next to the resources directory in a game install
	if c.BundleDir == "" && c.ResourceDir != "" {
		c.BundleDir = filepath.Join(c.ResourceDir, "..", "bundles")
	}
	if c.ExtractDir == "" {
		c.ExtractDir = "extracted"
	}
	if c.OutputDir == "" {
		c.OutputDir = "meshes"
	}
	if c.Location == "" {
		c.Location = "japan_streets"
	}
	if c.TextureFormat == "" {
		c.TextureFormat = "webp"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LightInference == nil {
		on := true
		c.LightInference = &on
	}
}

// BundlePath returns the bundle file of the configured location.
func (c *Config) BundlePath() string {
	return filepath.Join(c.BundleDir, c.Location+".bun")
}

// LocationDocument returns the archive path of the location's scene index.
func (c *Config) LocationDocument() string {
	return "data/generated/locations/" + c.Location + ".cdr"
}

// InferLights reports whether glow meshes get a derived point light.
func (c *Config) InferLights() bool {
	return c.LightInference == nil || *c.LightInference
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

// Validate reports settings that cannot work after Resolve.
func (c *Config) Validate() error {
	var errs []error
	if c.ResourceDir == "" {
		errs = append(errs, fmt.Errorf("config: no resource_dir (set it, pass -resources or export %s)", ResourceDirEnv))
	} else if info, err := os.Stat(c.ResourceDir); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("config: resource_dir %s is not a directory", c.ResourceDir))
	}
	switch strings.ToLower(c.TextureFormat) {
	case "webp", "png":
	default:
		errs = append(errs, fmt.Errorf("config: texture_format %q is not webp or png", c.TextureFormat))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// detectResourceDir looks for the game's archives next to the executable and
// in the working directory.
func detectResourceDir() string {
	var candidates []string
	if exe, _ := os.Executable(); exe != "" {
		dir := filepath.Dir(exe)
		candidates = append(candidates, dir, filepath.Join(dir, "bin", "resources"))
	}
	if cwd, _ := os.Getwd(); cwd != "" {
		candidates = append(candidates, cwd, filepath.Join(cwd, "resources"), filepath.Join(cwd, "bin", "resources"))
	}
	for _, dir := range candidates {
		if matches, _ := filepath.Glob(filepath.Join(dir, "*.pak")); len(matches) > 0 {
			return dir
		}
	}
	return ""
}
