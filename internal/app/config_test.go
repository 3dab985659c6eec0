package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "0 * * * *", cfg.RFQReminderCron)
	require.Equal(t, 24*time.Hour, cfg.RFQReminderWindow)

	threshold, err := cfg.Threshold()
	require.NoError(t, err)
	require.True(t, threshold.Equal(decimal.NewFromInt(1000000)))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RFQ_REMINDER_CRON", "*/30 * * * *")
	t.Setenv("RFQ_REMINDER_WINDOW", "6h")
	t.Setenv("HIGH_VALUE_THRESHOLD", "250000.50")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "*/30 * * * *", cfg.RFQReminderCron)
	require.Equal(t, 6*time.Hour, cfg.RFQReminderWindow)

	threshold, err := cfg.Threshold()
	require.NoError(t, err)
	require.True(t, threshold.Equal(decimal.RequireFromString("250000.50")))
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	t.Setenv("HIGH_VALUE_THRESHOLD", "a-lot")

	_, err := LoadConfig()
	require.Error(t, err)
}
