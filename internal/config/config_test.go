package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmehra2102/test-booking-service/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "booking.events", cfg.EventsTopic)
	assert.Equal(t, 10*time.Second, cfg.SchedulingTimeout)
	assert.Equal(t, 300, cfg.ReservationLockSeconds)
	assert.Equal(t, 3, cfg.RefundNoticeDays)
	assert.Equal(t, 45*time.Second, cfg.StepTimeout)
	assert.Equal(t, retry.DefaultPolicies(), cfg.Retry)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ENV", "production")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("REFUND_NOTICE_DAYS", "5")
	t.Setenv("STEP_TIMEOUT", "1m")
	t.Setenv("RETRY_COMMIT_MAX_RETRIES", "4")
	t.Setenv("RETRY_COMMIT_BASE_DELAY", "50ms")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 5, cfg.RefundNoticeDays)
	assert.Equal(t, time.Minute, cfg.StepTimeout)
	assert.Equal(t, retry.Policy{MaxRetries: 4, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}, cfg.Retry[retry.Commit])
	assert.Equal(t, retry.DefaultPolicies()[retry.Retrieval], cfg.Retry[retry.Retrieval])
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := "SCHEDULING_BASE_URL: http://tcn.internal\nRESERVATION_LOCK_SECONDS: 120\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://tcn.internal", cfg.SchedulingBaseURL)
	assert.Equal(t, 120, cfg.ReservationLockSeconds)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("negative notice", func(t *testing.T) {
		t.Setenv("REFUND_NOTICE_DAYS", "-1")
		_, err := Load(t.TempDir())
		require.Error(t, err)
	})
	t.Run("base above max", func(t *testing.T) {
		t.Setenv("RETRY_MUTATION_BASE_DELAY", "5s")
		_, err := Load(t.TempDir())
		require.ErrorContains(t, err, "RETRY_MUTATION")
	})
}
