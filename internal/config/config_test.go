package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-broker/internal/config"
)

const vaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) string {
	datadir := t.TempDir()
	t.Setenv("BROKER_DATADIR", datadir)
	t.Setenv("BROKER_VAULT_KEY", vaultKey)
	t.Setenv("BROKER_PLATFORM_URL", "http://localhost:7070")
	t.Setenv("BROKER_VERIFICATION_URL", "http://localhost:7071")
	t.Setenv("BROKER_CHALLENGE_URL", "http://localhost:7072")
	return datadir
}

func TestInitConfig(t *testing.T) {
	datadir := setRequired(t)
	t.Setenv("BROKER_CHALLENGE_TIMEOUT", "30")
	t.Setenv("BROKER_PLATFORM_REQUEST_TIMEOUT", "2500")

	require.NoError(t, config.InitConfig())

	require.Equal(t, datadir, config.GetDatadir())
	require.DirExists(t, filepath.Join(datadir, config.DbLocation))
	require.Equal(t, 9090, config.GetInt(config.ListeningPortKey))
	require.Equal(t, "badger", config.GetString(config.DBTypeKey))
	require.Equal(t, 30*time.Second, config.GetSeconds(config.ChallengeTimeoutKey))
	require.Equal(t, time.Hour, config.GetSeconds(config.TradeMaxDurationKey))
	require.Equal(t,
		2500*time.Millisecond, config.GetMilliseconds(config.PlatformRequestTimeoutKey),
	)
	require.Equal(t,
		500*time.Millisecond, config.GetMilliseconds(config.SchedulerPollIntervalKey),
	)
	require.True(t, config.GetBool(config.EnableMetricsKey))

	key, err := config.GetVaultKey()
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestInitConfigInvalid(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name:   "missing vault key",
			env:    map[string]string{"BROKER_VAULT_KEY": ""},
			errMsg: config.VaultKeyKey,
		},
		{
			name:   "short vault key",
			env:    map[string]string{"BROKER_VAULT_KEY": "0011"},
			errMsg: "32 bytes",
		},
		{
			name:   "missing platform url",
			env:    map[string]string{"BROKER_PLATFORM_URL": ""},
			errMsg: config.PlatformURLKey,
		},
		{
			name:   "unsupported db",
			env:    map[string]string{"BROKER_DB_TYPE": "postgres"},
			errMsg: "not supported",
		},
		{
			name:   "non positive workers",
			env:    map[string]string{"BROKER_NUM_WORKERS": "0"},
			errMsg: config.NumWorkersKey,
		},
		{
			name: "escalation thresholds",
			env: map[string]string{
				"BROKER_TRADE_DELAYED_AFTER":    "900",
				"BROKER_TRADE_BACKLOGGED_AFTER": "600",
			},
			errMsg: config.TradeDelayedAfterKey,
		},
		{
			name:   "max duration",
			env:    map[string]string{"BROKER_TRADE_MAX_DURATION": "900"},
			errMsg: config.TradeMaxDurationKey,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := config.InitConfig()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.errMsg), err.Error())
		})
	}
}
