package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDisabled(t *testing.T) {
	mgr, err := NewManager(DefaultConfig())
	require.NoError(t, err)

	assert.False(t, mgr.IsEnabled())
	assert.Nil(t, mgr.Repository())
	assert.NoError(t, mgr.Close())

	health := mgr.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Contains(t, health.Errors, "Database persistence disabled")

	assert.NoError(t, mgr.Health().Ping(context.Background()))

	stats := mgr.Health().Stats(context.Background())
	assert.Equal(t, false, stats["enabled"])
}

func TestNewManagerEnabledRequiresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	_, err := NewManager(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.False(t, cfg.Enabled)
}

func TestRowsToFrame(t *testing.T) {
	rows := []barRow{
		{TS: 100, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1000},
		{TS: 200, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 900},
	}

	frame := rowsToFrame("ACME", rows)

	require.Equal(t, "ACME", frame.Ticker)
	require.Len(t, frame.Bars, 2)
	assert.Equal(t, int64(100), frame.Bars[0].TS)
	assert.Equal(t, 1.5, frame.Bars[0].Close)
	assert.Equal(t, int64(200), frame.Bars[1].TS)
	assert.Equal(t, float64(900), frame.Bars[1].Volume)
}
