package application

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/application/multitrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/scheduler"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/tradeapi"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-broker/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-broker/internal/infrastructure/storage/db/inmemory"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

// Config holds the collaborators and the tuning of the broker, and lazily
// builds every application service out of them.
type Config struct {
	DBType string
	// DBConfig is the datadir of the badger db.
	DBConfig interface{}

	Platform     ports.TradingPlatform
	Verification ports.TwoStepVerification
	Codes        ports.CodeGenerator
	Cipher       ports.Cipher
	SecurePubSub ports.SecurePubSub
	EventSinks   []ports.Publisher

	PlatformTimeout       time.Duration
	PlatformRateLimit     int
	NumWorkers            int
	SchedulerPollInterval time.Duration
	TradeSettings         singletrade.Settings

	repo        ports.RepoManager
	pubsub      *pubsub.Service
	handler     *tradeapi.Handler
	scheduler   *scheduler.Scheduler
	singleTrade *singletrade.Service
	multiTrade  *multitrade.Service
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("db type %s not supported", c.DBType)
	}
	if c.DBType == DBBadger {
		if _, ok := c.DBConfig.(string); !ok {
			return fmt.Errorf("badger db requires a datadir")
		}
	}
	if _, err := c.tradeHandler(); err != nil {
		return err
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.multiTradeService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	svc, _ := c.repoManager()
	return svc
}

func (c *Config) PubSubService() *pubsub.Service {
	svc, _ := c.pubsubService()
	return svc
}

func (c *Config) Scheduler() *scheduler.Scheduler {
	svc, _ := c.schedulerService()
	return svc
}

func (c *Config) SingleTradeService() *singletrade.Service {
	svc, _ := c.singleTradeService()
	return svc
}

func (c *Config) MultiTradeService() *multitrade.Service {
	svc, _ := c.multiTradeService()
	return svc
}

// Start registers the step functions of the state machines, re-schedules
// the work left in flight by a previous run and starts the scheduler.
func (c *Config) Start(ctx context.Context) error {
	sched, err := c.schedulerService()
	if err != nil {
		return err
	}
	singleTradeSvc, err := c.singleTradeService()
	if err != nil {
		return err
	}
	multiTradeSvc, err := c.multiTradeService()
	if err != nil {
		return err
	}

	sched.Register(singletrade.Queue, singleTradeSvc.Process)
	sched.Register(multitrade.Queue, multiTradeSvc.Process)

	if err := singleTradeSvc.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover single trades: %w", err)
	}
	if err := multiTradeSvc.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover multi trades: %w", err)
	}
	return sched.Start(ctx)
}

// Stop waits for the running steps to return and releases the stores.
func (c *Config) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
		log.Debug("stopped scheduler")
	}
	if c.pubsub != nil {
		c.pubsub.Close()
		log.Debug("stopped pubsub service")
	}
	if c.repo != nil {
		c.repo.Close()
		log.Debug("closed connection with db")
	}
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		switch c.DBType {
		case DBBadger:
			datadir, _ := c.DBConfig.(string)
			repoManager, err := dbbadger.NewRepoManager(datadir, log.New())
			if err != nil {
				return nil, err
			}
			c.repo = repoManager
		case DBInMemory:
			c.repo = inmemory.NewRepoManager()
		default:
			return nil, fmt.Errorf("db type %s not supported", c.DBType)
		}
	}
	return c.repo, nil
}

func (c *Config) pubsubService() (*pubsub.Service, error) {
	if c.pubsub == nil {
		c.pubsub = pubsub.NewService(c.SecurePubSub, c.EventSinks...)
	}
	return c.pubsub, nil
}

func (c *Config) tradeHandler() (*tradeapi.Handler, error) {
	if c.handler == nil {
		handler, err := tradeapi.NewHandler(tradeapi.Config{
			Platform:     c.Platform,
			Verification: c.Verification,
			Codes:        c.Codes,
			Cipher:       c.Cipher,
			Timeout:      c.PlatformTimeout,
			RateLimit:    c.PlatformRateLimit,
		})
		if err != nil {
			return nil, err
		}
		c.handler = handler
	}
	return c.handler, nil
}

func (c *Config) schedulerService() (*scheduler.Scheduler, error) {
	if c.scheduler == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		sched, err := scheduler.New(scheduler.Config{
			Repository:   repo.JobRepository(),
			NumWorkers:   c.NumWorkers,
			PollInterval: c.SchedulerPollInterval,
		})
		if err != nil {
			return nil, err
		}
		c.scheduler = sched
	}
	return c.scheduler, nil
}

func (c *Config) singleTradeService() (*singletrade.Service, error) {
	if c.singleTrade == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		sched, err := c.schedulerService()
		if err != nil {
			return nil, err
		}
		handler, err := c.tradeHandler()
		if err != nil {
			return nil, err
		}
		pubsubSvc, _ := c.pubsubService()
		svc, err := singletrade.NewService(
			repo.SingleTradeRepository(), sched, handler, c.Cipher, pubsubSvc,
			c.TradeSettings,
		)
		if err != nil {
			return nil, err
		}
		c.singleTrade = svc
	}
	return c.singleTrade, nil
}

func (c *Config) multiTradeService() (*multitrade.Service, error) {
	if c.multiTrade == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		sched, err := c.schedulerService()
		if err != nil {
			return nil, err
		}
		singleTradeSvc, err := c.singleTradeService()
		if err != nil {
			return nil, err
		}
		pubsubSvc, _ := c.pubsubService()
		svc, err := multitrade.NewService(
			repo.MultiTradeRepository(), singleTradeSvc, sched, c.Cipher, pubsubSvc,
		)
		if err != nil {
			return nil, err
		}
		c.multiTrade = svc
	}
	return c.multiTrade, nil
}
