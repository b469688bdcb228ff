package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	require.Equal(t, ModeLive, cfg.Mode)
	require.Equal(t, 2, cfg.Aggregator.MinSources)
	require.Equal(t, 10*time.Second, cfg.CacheTTL())
	require.Equal(t, 300*time.Second, cfg.ResetTimeout())
	require.InDelta(t, 1.5, cfg.Aggregator.Thresholds["crypto"], 1e-9)
	require.InDelta(t, 0.5, cfg.Aggregator.Thresholds["forex"], 1e-9)
	require.Equal(t, []string{"metals_live", "polygon", "yahoo", "mock_live"}, cfg.Aggregator.Routes["metals"])
	require.Equal(t, 10, cfg.Connectors["coingecko"].Capacity)
	require.InDelta(t, 5.0/60, cfg.Connectors["polygon"].RefillPerSec, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	// Arrange: a YAML file plus environment overrides
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: test
aggregator:
  cache_ttl_ms: 2500
  thresholds:
    crypto: 2.0
connectors:
  yahoo:
    enabled: false
`), 0o600))
	t.Setenv("PRICEQUORUM_SERVER_PORT", "9090")
	t.Setenv("POLYGON_API_KEY", "poly-key")
	t.Setenv("PRICEQUORUM_CONNECTORS_ALPACA_API_KEY", "alpaca-id")

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	require.Equal(t, ModeTest, cfg.Mode)
	require.Equal(t, 1, cfg.Aggregator.MinSources, "test mode defaults to a single source")
	require.Equal(t, 2500*time.Millisecond, cfg.CacheTTL())
	require.InDelta(t, 2.0, cfg.Aggregator.Thresholds["crypto"], 1e-9)
	require.InDelta(t, 1.0, cfg.Aggregator.Thresholds["metals"], 1e-9)
	require.False(t, cfg.Connectors["yahoo"].Enabled)
	require.True(t, cfg.Connectors["coingecko"].Enabled)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "poly-key", cfg.Connectors["polygon"].APIKey)
	require.Equal(t, "alpaca-id", cfg.Connectors["alpaca"].APIKey)
}

func TestLoad_ExplicitMinSourcesWins(t *testing.T) {
	t.Setenv("PRICEQUORUM_MODE", "test")
	t.Setenv("PRICEQUORUM_AGGREGATOR_MIN_SOURCES", "3")
	t.Chdir(t.TempDir())

	cfg, err := Load("")

	require.NoError(t, err)
	require.Equal(t, 3, cfg.Aggregator.MinSources)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
	t.Run("bad mode", func(t *testing.T) {
		t.Setenv("PRICEQUORUM_MODE", "paper")
		t.Chdir(t.TempDir())
		_, err := Load("")
		require.ErrorContains(t, err, "mode")
	})
}
