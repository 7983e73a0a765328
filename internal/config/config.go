// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go.ngs.io/elevation-api/internal/logger"
)

// Config holds all configuration for the application.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server ServerConfig `mapstructure:"server"`
	// Elevation holds the elevation sources registered at startup.
	Elevation ElevationConfig `mapstructure:"elevation"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// CORSAllowedOrigins is a comma-separated origin list. Empty allows all.
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins" default:""`
	// SourceRoot is the directory below which clients may register sources
	// over HTTP. Empty disables HTTP source registration.
	SourceRoot string `mapstructure:"source_root" default:""`
}

// ElevationConfig holds the startup elevation sources.
type ElevationConfig struct {
	// DemDirs is a comma-separated list of DEM tile directories.
	DemDirs string `mapstructure:"dem_dirs" default:""`
	// GeoidPath is the geoid model file.
	GeoidPath string `mapstructure:"geoid_path" default:""`
	// DefaultHeight is returned where no source has data.
	DefaultHeight float64 `mapstructure:"default_height" default:"0"`
	// TilePatterns is a comma-separated list of doublestar patterns.
	TilePatterns string `mapstructure:"tile_patterns" default:"**/*.nc,**/*.nc4,**/*.grd"`
	// Watch reloads sources when their files change.
	Watch bool `mapstructure:"watch" default:"false"`
}

// DemDirList returns the configured DEM directories.
func (c ElevationConfig) DemDirList() []string {
	return splitList(c.DemDirs)
}

// TilePatternList returns the configured tile patterns.
func (c ElevationConfig) TilePatternList() []string {
	return splitList(c.TilePatterns)
}

// AllowedOrigins returns the configured CORS origins; nil allows all.
func (c ServerConfig) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig loads configuration from environment variables and .env file.
// Variables already set in the process environment take precedence over the
// .env file, so a deployment can override a checked-in .env.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production).
	// Load, unlike Overload, never replaces a variable that is already set.
	_ = godotenv.Load(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
