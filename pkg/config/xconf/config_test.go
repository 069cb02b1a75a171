package xconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
quota:
  backend: distributed
  default_rate: 100
redis:
  addr: localhost:6379
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeTemp(t, "config.yaml", sampleYAML)
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format())
		assert.Equal(t, path, cfg.Path())
		assert.Equal(t, "distributed", cfg.Client().String("quota.backend"))
	})

	t.Run("json", func(t *testing.T) {
		path := writeTemp(t, "config.json", `{"redis":{"addr":"localhost:6379"}}`)
		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Client().String("redis.addr"))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := New("config.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New("nope.yaml")
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeTemp(t, "bad.yaml", "quota: [unclosed")
		_, err := New(path)
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewBytes(t *testing.T) {
	cfg, err := NewBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path())
	assert.Equal(t, int64(100), cfg.Client().Int64("quota.default_rate"))

	_, err = NewBytes([]byte("{}"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// 空数据产出空配置。
	cfg, err = NewBytes(nil, FormatYAML)
	require.NoError(t, err)
	assert.False(t, cfg.Client().Exists("quota"))
}

func TestConfig_Unmarshal(t *testing.T) {
	type quotaConfig struct {
		Backend     string `koanf:"backend"`
		DefaultRate int    `koanf:"default_rate"`
	}

	cfg, err := NewBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	var qc quotaConfig
	require.NoError(t, cfg.Unmarshal("quota", &qc))
	assert.Equal(t, "distributed", qc.Backend)
	assert.Equal(t, 100, qc.DefaultRate)

	// 不存在的路径得到零值。
	var empty quotaConfig
	require.NoError(t, cfg.Unmarshal("nope", &empty))
	assert.Zero(t, empty)
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("APEXTEST_QUOTA__BACKEND", "local")
	t.Setenv("APEXTEST_REDIS__ADDR", "redis:6380")

	cfg, err := NewBytes([]byte(sampleYAML), FormatYAML, WithEnvPrefix("APEXTEST_"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Client().String("quota.backend"))
	assert.Equal(t, "redis:6380", cfg.Client().String("redis.addr"))
	// 未覆盖的键保持文件值。
	assert.Equal(t, 100, cfg.Client().Int("quota.default_rate"))
}

func TestMustUnmarshal_Panics(t *testing.T) {
	cfg, err := NewBytes([]byte(`quota: {backend: [not, a, string]}`), FormatYAML)
	require.NoError(t, err)

	type quotaConfig struct {
		Backend string `koanf:"backend"`
	}
	var qc quotaConfig
	assert.Panics(t, func() { cfg.MustUnmarshal("quota", &qc) })
}
