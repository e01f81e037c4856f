package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/tdex-network/tdex-broker/internal/core/application"

	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of
	// the broker
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ListeningPortKey is the port where the REST and websocket interfaces
	// listen on
	ListeningPortKey = "LISTENING_PORT"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// VaultKeyKey is the hex encoded 32 bytes AES key used to encrypt
	// credentials at rest
	VaultKeyKey = "VAULT_KEY"
	// PlatformURLKey is the base url of the trading platform API
	PlatformURLKey = "PLATFORM_URL"
	// VerificationURLKey is the base url of the two-step verification API
	VerificationURLKey = "VERIFICATION_URL"
	// ChallengeURLKey is the base url of the challenge API used to clear
	// frictions
	ChallengeURLKey = "CHALLENGE_URL"
	// PlatformRequestTimeoutKey is the timeout in milliseconds of every
	// outbound call
	PlatformRequestTimeoutKey = "PLATFORM_REQUEST_TIMEOUT"
	// PlatformRateLimitKey is the max number of outbound calls per second
	PlatformRateLimitKey = "PLATFORM_RATE_LIMIT"
	// NumWorkersKey is the size of the scheduler worker pool
	NumWorkersKey = "NUM_WORKERS"
	// SchedulerPollIntervalKey is the period in milliseconds of the due jobs
	// scan
	SchedulerPollIntervalKey = "SCHEDULER_POLL_INTERVAL"
	// ChallengeTimeoutKey is how long in seconds a trade waits for a human to
	// solve a challenge
	ChallengeTimeoutKey = "CHALLENGE_TIMEOUT"
	// TradePollIntervalKey, TradeDelayedPollIntervalKey and
	// TradeBackloggedPollIntervalKey are the poll periods in seconds of a
	// trade pending on the platform
	TradePollIntervalKey           = "TRADE_POLL_INTERVAL"
	TradeDelayedPollIntervalKey    = "TRADE_DELAYED_POLL_INTERVAL"
	TradeBackloggedPollIntervalKey = "TRADE_BACKLOGGED_POLL_INTERVAL"
	// TradeDelayedAfterKey and TradeBackloggedAfterKey are the elapsed times
	// in seconds after which a pending trade is escalated
	TradeDelayedAfterKey    = "TRADE_DELAYED_AFTER"
	TradeBackloggedAfterKey = "TRADE_BACKLOGGED_AFTER"
	// TradeMaxDurationKey is the elapsed time in seconds after which a
	// pending trade is declined
	TradeMaxDurationKey = "TRADE_MAX_DURATION"
	// MaxOfferItemsKey is the per side cap of items of an offer
	MaxOfferItemsKey = "MAX_OFFER_ITEMS"
	// EnableMetricsKey exposes prometheus metrics at /metrics
	EnableMetricsKey = "ENABLE_METRICS"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-broker", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("BROKER")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(ListeningPortKey, 9090)
	vip.SetDefault(DBTypeKey, application.DBBadger)
	vip.SetDefault(PlatformRequestTimeoutKey, 15000)
	vip.SetDefault(PlatformRateLimitKey, 10)
	vip.SetDefault(NumWorkersKey, 8)
	vip.SetDefault(SchedulerPollIntervalKey, 500)
	vip.SetDefault(ChallengeTimeoutKey, 90)
	vip.SetDefault(TradePollIntervalKey, 5)
	vip.SetDefault(TradeDelayedPollIntervalKey, 30)
	vip.SetDefault(TradeBackloggedPollIntervalKey, 120)
	vip.SetDefault(TradeDelayedAfterKey, 120)
	vip.SetDefault(TradeBackloggedAfterKey, 900)
	vip.SetDefault(TradeMaxDurationKey, 3600)
	vip.SetDefault(MaxOfferItemsKey, 4)
	vip.SetDefault(EnableMetricsKey, true)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetMilliseconds returns the value of an integer key expressed in ms.
func GetMilliseconds(key string) time.Duration {
	return time.Duration(vip.GetInt64(key)) * time.Millisecond
}

// GetSeconds returns the value of an integer key expressed in seconds.
func GetSeconds(key string) time.Duration {
	return time.Duration(vip.GetInt64(key)) * time.Second
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetVaultKey returns the decoded credential vault key.
func GetVaultKey() ([]byte, error) {
	return hex.DecodeString(GetString(VaultKeyKey))
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	dbType := GetString(DBTypeKey)
	if _, ok := application.SupportedDBType[dbType]; !ok {
		return fmt.Errorf("db type %s not supported", dbType)
	}

	key, err := GetVaultKey()
	if err != nil {
		return fmt.Errorf("%s must be hex encoded", VaultKeyKey)
	}
	if len(key) != 32 {
		return fmt.Errorf("%s must be a 32 bytes key", VaultKeyKey)
	}

	for _, key := range []string{
		PlatformURLKey, VerificationURLKey, ChallengeURLKey,
	} {
		if !vip.IsSet(key) || GetString(key) == "" {
			return fmt.Errorf("missing %s", key)
		}
	}

	for _, key := range []string{
		PlatformRequestTimeoutKey, PlatformRateLimitKey, NumWorkersKey,
		SchedulerPollIntervalKey, ChallengeTimeoutKey, TradePollIntervalKey,
		TradeDelayedPollIntervalKey, TradeBackloggedPollIntervalKey,
		TradeDelayedAfterKey, TradeBackloggedAfterKey, TradeMaxDurationKey,
		MaxOfferItemsKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	}

	delayed, backlogged := GetInt(TradeDelayedAfterKey), GetInt(TradeBackloggedAfterKey)
	if delayed >= backlogged {
		return fmt.Errorf(
			"%s must be lower than %s", TradeDelayedAfterKey, TradeBackloggedAfterKey,
		)
	}
	if backlogged >= GetInt(TradeMaxDurationKey) {
		return fmt.Errorf(
			"%s must be lower than %s", TradeBackloggedAfterKey, TradeMaxDurationKey,
		)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	return makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
