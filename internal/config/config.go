// Package config loads the service's def/dev/prod TOML profiles and
// selects one by the OLAP_ENV environment variable.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is one environment's set of endpoints and tunables. Every
// field has a flat TOML name so a profile can be overridden with a
// single line rather than a nested table.
type Config struct {
	MetaGrpcURL string `toml:"meta_grpc_url"`
	AggGrpcURL  string `toml:"agg_grpc_url"`
	DatabaseURL string `toml:"database_url"`
	RedisAddr   string `toml:"redis_addr"`
	KafkaBroker string `toml:"kafka_broker"`
	HTTPPort    string `toml:"http_port"`

	// FiducialCap bounds the query driver's fiducial axis-resolution
	// loop (see query.Config.FiducialCap). 0 means "use the driver's
	// own default".
	FiducialCap int `toml:"fiducial_cap"`
	// MeasuresAlwaysAccessible mirrors access.Config's same-named
	// field, promoted here so it's a deployment-time setting rather
	// than a compiled-in default.
	MeasuresAlwaysAccessible bool `toml:"measures_always_accessible"`
}

// Settings is the full config.toml document: one Config per
// environment. Each environment's table stands alone: Resolve does
// not fill a field it leaves unset from "def"; that field keeps its
// zero value.
type Settings struct {
	Def  Config `toml:"def"`
	Dev  Config `toml:"dev"`
	Prod Config `toml:"prod"`
}

// Load reads and parses path into a Settings document.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &s, nil
}

// Resolve picks the Config matching envName ("dev" or "prod"),
// falling back to Def for any other value including the empty string.
func (s *Settings) Resolve(envName string) Config {
	switch envName {
	case "dev":
		return s.Dev
	case "prod":
		return s.Prod
	default:
		return s.Def
	}
}

// LoadForEnv loads path and resolves it against the OLAP_ENV
// environment variable in one step, the shape cmd/mdxquery-service
// calls at startup.
func LoadForEnv(path string) (Config, error) {
	settings, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return settings.Resolve(os.Getenv("OLAP_ENV")), nil
}
