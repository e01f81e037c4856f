package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/config"
	"github.com/tdex-network/tdex-broker/internal/core/application"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/internal/infrastructure/platform"
	webhookpubsub "github.com/tdex-network/tdex-broker/internal/infrastructure/pubsub"
	websockethub "github.com/tdex-network/tdex-broker/internal/infrastructure/pubsub/websocket"
	totpgen "github.com/tdex-network/tdex-broker/internal/infrastructure/totp"
	httpinterface "github.com/tdex-network/tdex-broker/internal/interfaces/http"
	"github.com/tdex-network/tdex-broker/pkg/stats"
	"github.com/tdex-network/tdex-broker/pkg/vault"
)

const memStatsInterval = 10 * time.Minute

func main() {
	if err := config.InitConfig(); err != nil {
		log.Fatal(err)
	}

	logLevel := config.GetInt(config.LogLevelKey)
	log.SetLevel(log.Level(logLevel))

	datadir := config.GetDatadir()
	dbDir := filepath.Join(datadir, config.DbLocation)
	dbType := config.GetString(config.DBTypeKey)
	requestTimeout := config.GetMilliseconds(config.PlatformRequestTimeoutKey)

	vaultKey, err := config.GetVaultKey()
	if err != nil {
		log.WithError(err).Fatal("invalid vault key")
	}
	cipher, err := vault.New(vaultKey)
	if err != nil {
		log.WithError(err).Fatal("error while setting up credential vault")
	}

	tradingPlatform, err := platform.NewTradingPlatform(
		config.GetString(config.PlatformURLKey), requestTimeout,
	)
	if err != nil {
		log.WithError(err).Fatal("error while setting up trading platform")
	}
	verification, err := platform.NewTwoStepVerification(
		config.GetString(config.VerificationURLKey),
		config.GetString(config.ChallengeURLKey),
		requestTimeout,
	)
	if err != nil {
		log.WithError(err).Fatal("error while setting up two-step verification")
	}

	pubsubDir := ""
	if dbType == application.DBBadger {
		pubsubDir = dbDir
	}
	webhooks, err := webhookpubsub.NewService(
		pubsubDir, cipher, log.New(), requestTimeout,
	)
	if err != nil {
		log.WithError(err).Fatal("error while setting up webhook pubsub")
	}
	events := websockethub.NewHub()

	appConfig := &application.Config{
		DBType:                dbType,
		DBConfig:              dbDir,
		Platform:              tradingPlatform,
		Verification:          verification,
		Codes:                 totpgen.NewCodeGenerator(),
		Cipher:                cipher,
		SecurePubSub:          webhooks,
		EventSinks:            []ports.Publisher{events},
		PlatformTimeout:       requestTimeout,
		PlatformRateLimit:     config.GetInt(config.PlatformRateLimitKey),
		NumWorkers:            config.GetInt(config.NumWorkersKey),
		SchedulerPollInterval: config.GetMilliseconds(config.SchedulerPollIntervalKey),
		TradeSettings: singletrade.Settings{
			ChallengeTimeout:       config.GetSeconds(config.ChallengeTimeoutKey),
			PollInterval:           config.GetSeconds(config.TradePollIntervalKey),
			DelayedPollInterval:    config.GetSeconds(config.TradeDelayedPollIntervalKey),
			BackloggedPollInterval: config.GetSeconds(config.TradeBackloggedPollIntervalKey),
			DelayedAfter:           config.GetSeconds(config.TradeDelayedAfterKey),
			BackloggedAfter:        config.GetSeconds(config.TradeBackloggedAfterKey),
			MaxDuration:            config.GetSeconds(config.TradeMaxDurationKey),
			MaxOfferItems:          config.GetInt(config.MaxOfferItemsKey),
		},
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid broker config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := appConfig.Start(ctx); err != nil {
		log.WithError(err).Fatal("error while starting broker")
	}
	defer appConfig.Stop()

	enableMetrics := config.GetBool(config.EnableMetricsKey)
	svc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Port:           config.GetInt(config.ListeningPortKey),
		EnableMetrics:  enableMetrics,
		MultiTradeSvc:  appConfig.MultiTradeService(),
		SingleTradeSvc: appConfig.SingleTradeService(),
		PubSubSvc:      appConfig.PubSubService(),
		Events:         events,
	})
	if err != nil {
		log.WithError(err).Fatal("error while setting up interface")
	}

	if err := svc.Start(); err != nil {
		log.WithError(err).Fatal("error while starting interface")
	}
	defer svc.Stop()

	if enableMetrics && log.Level(logLevel) >= log.DebugLevel {
		stats.EnableMemoryStatistics(ctx, memStatsInterval)
	}

	log.Infof(
		"broker is listening on port %d", config.GetInt(config.ListeningPortKey),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	<-sigChan

	log.Info("shutting down broker")
}
