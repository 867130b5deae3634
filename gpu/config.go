// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gviegas/hal/wsi"
)

// Config configures the creation of a Device.
type Config struct {
	// Name of the driver to open.
	// The empty string selects the first registered
	// driver.
	Driver string
	// Name of the platform profile.
	// The empty string selects the profile of
	// wsi.PlatformInUse.
	Platform string
	// Requested limits.
	// Zero fields select the backend's values.
	Limits Limits
	// Features to enable.
	// Zero enables every feature the backend supports.
	Features Features
	// Maximum number of pending submissions per queue.
	// Submit blocks when a queue has this many pending
	// submissions.
	QueueDepth int
	// Minimum level of log records.
	LogLevel slog.Level
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		QueueDepth: 16,
		LogLevel:   slog.LevelInfo,
	}
}

// Validate checks whether c is a valid configuration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c.QueueDepth <= 0 {
		return configErr(op, wrapf(ErrInvalidValue, "queue depth %d", c.QueueDepth))
	}
	if c.Platform != "" {
		if _, ok := ProfileByName(c.Platform); !ok {
			return configErr(op, wrapf(ErrInvalidValue, "platform %q", c.Platform))
		}
	}
	if c.Features&^(FeatureTimestampQuery|FeatureIndirect) != 0 {
		return configErr(op, wrapf(ErrInvalidValue, "features %#x", uint32(c.Features)))
	}
	return nil
}

// Profile returns the platform profile that c selects.
func (c *Config) Profile() PlatformProfile {
	if p, ok := ProfileByName(c.Platform); ok {
		return p
	}
	return ProfileFor(wsi.PlatformInUse())
}

// NewLogger creates a text logger that writes records of
// level c.LogLevel or above to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// fileConfig is the on-disk form of Config.
type fileConfig struct {
	Driver     string   `toml:"driver" yaml:"driver"`
	Platform   string   `toml:"platform" yaml:"platform"`
	Limits     Limits   `toml:"limits" yaml:"limits"`
	Features   []string `toml:"features" yaml:"features"`
	QueueDepth int      `toml:"queue_depth" yaml:"queue_depth"`
	LogLevel   string   `toml:"log_level" yaml:"log_level"`
}

var featureNames = map[string]Features{
	"timestamp-query": FeatureTimestampQuery,
	"indirect":        FeatureIndirect,
}

// FeatureNames returns the names of the features set in f.
func FeatureNames(f Features) []string {
	var s []string
	for _, n := range []string{"indirect", "timestamp-query"} {
		if f.Has(featureNames[n]) {
			s = append(s, n)
		}
	}
	return s
}

// LoadConfig reads a Config from a TOML (.toml) or YAML
// (.yaml, .yml) file.
// Fields absent from the file keep their DefaultConfig
// values.
func LoadConfig(path string) (Config, error) {
	const op = "LoadConfig"
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, configErr(op, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return ParseConfig(data, "toml")
	case ".yaml", ".yml":
		return ParseConfig(data, "yaml")
	default:
		return Config{}, configErr(op, wrapf(ErrUnsupported, "config file extension %q", ext))
	}
}

// ParseConfig decodes a Config from data.
// format is either "toml" or "yaml".
func ParseConfig(data []byte, format string) (Config, error) {
	const op = "ParseConfig"
	def := DefaultConfig()
	fc := fileConfig{QueueDepth: def.QueueDepth}
	var err error
	switch format {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&fc)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&fc); err == io.EOF {
			err = nil
		}
	default:
		return Config{}, configErr(op, wrapf(ErrUnsupported, "config format %q", format))
	}
	if err != nil {
		return Config{}, configErr(op, err)
	}
	cfg := Config{
		Driver:     fc.Driver,
		Platform:   fc.Platform,
		Limits:     fc.Limits,
		QueueDepth: fc.QueueDepth,
		LogLevel:   def.LogLevel,
	}
	for _, n := range fc.Features {
		f, ok := featureNames[n]
		if !ok {
			return Config{}, configErr(op, wrapf(ErrInvalidValue, "feature %q", n))
		}
		cfg.Features |= f
	}
	if fc.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return Config{}, configErr(op, wrapf(ErrInvalidValue, "log level %q", fc.LogLevel))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PlatformProfile holds the presentation defaults of a
// class of platforms.
// It is resolved once, from configuration, and used when
// swapchain descriptors leave fields unset.
type PlatformProfile struct {
	Name string
	// Surface formats in order of preference.
	SurfaceFormats []TextureFormat
	PresentMode    PresentMode
	ImageCount     uint32
}

// Platform profiles.
var (
	ProfileDesktop = PlatformProfile{
		Name:           "desktop",
		SurfaceFormats: []TextureFormat{gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		PresentMode:    PresentFIFO,
		ImageCount:     3,
	}
	ProfileMobile = PlatformProfile{
		Name:           "mobile",
		SurfaceFormats: []TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm},
		PresentMode:    PresentFIFO,
		ImageCount:     2,
	}
	ProfileHeadless = PlatformProfile{
		Name:           "headless",
		SurfaceFormats: []TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm},
		PresentMode:    PresentMailbox,
		ImageCount:     2,
	}
)

// ProfileByName returns the profile with the given name.
// "android" is an alias of "mobile".
func ProfileByName(name string) (PlatformProfile, bool) {
	switch name {
	case "desktop":
		return ProfileDesktop, true
	case "mobile", "android":
		return ProfileMobile, true
	case "headless":
		return ProfileHeadless, true
	}
	return PlatformProfile{}, false
}

// ProfileFor returns the profile of a window system.
func ProfileFor(p wsi.Platform) PlatformProfile {
	switch p {
	case wsi.None:
		return ProfileHeadless
	case wsi.Android:
		return ProfileMobile
	}
	return ProfileDesktop
}
