package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdxgrid/evaluator/internal/config"
)

const sampleTOML = `
[def]
meta_grpc_url = "localhost:9090"
agg_grpc_url = "localhost:9091"
http_port = "8080"
fiducial_cap = 8
measures_always_accessible = true

[dev]
meta_grpc_url = "localhost:9090"
agg_grpc_url = "localhost:9091"
http_port = "8081"
fiducial_cap = 4
measures_always_accessible = true

[prod]
meta_grpc_url = "meta.prod.internal:443"
agg_grpc_url = "agg.prod.internal:443"
database_url = "postgres://prod/olap"
redis_addr = "redis.prod.internal:6379"
kafka_broker = "kafka.prod.internal:9092"
http_port = "80"
fiducial_cap = 8
measures_always_accessible = false
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))
	return path
}

func TestLoad_ResolvesEachProfile(t *testing.T) {
	path := writeSample(t)
	settings, err := config.Load(path)
	require.NoError(t, err)

	def := settings.Resolve("")
	assert.Equal(t, "8080", def.HTTPPort)
	assert.Equal(t, 8, def.FiducialCap)

	dev := settings.Resolve("dev")
	assert.Equal(t, "8081", dev.HTTPPort)
	assert.Equal(t, 4, dev.FiducialCap)

	prod := settings.Resolve("prod")
	assert.Equal(t, "80", prod.HTTPPort)
	assert.False(t, prod.MeasuresAlwaysAccessible)
	assert.Equal(t, "redis.prod.internal:6379", prod.RedisAddr)
}

func TestLoadForEnv_FallsBackToDefWhenUnset(t *testing.T) {
	path := writeSample(t)
	t.Setenv("OLAP_ENV", "")

	cfg, err := config.LoadForEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
}

func TestLoadForEnv_SelectsDev(t *testing.T) {
	path := writeSample(t)
	t.Setenv("OLAP_ENV", "dev")

	cfg, err := config.LoadForEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.HTTPPort)
}
