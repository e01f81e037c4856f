package dbbadger

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const (
	tradesDir    = "trades"
	schedulerDir = "scheduler"

	gcInterval      = 30 * time.Minute
	maxTxRetries    = 10
	gcDiscardRatio  = 0.5
	sequenceBandwth = 100
)

type repoManager struct {
	tradeStore *badgerhold.Store
	jobStore   *badgerhold.Store
	stopGC     chan struct{}

	multiTradeRepository  domain.MultiTradeRepository
	singleTradeRepository domain.SingleTradeRepository
	jobRepository         domain.JobRepository
}

// NewRepoManager opens (or creates if not exists) the badger stores under the
// given base directory, one for trades and one for the scheduler jobs. An
// empty directory makes badger run fully in memory.
func NewRepoManager(
	baseDbDir string, logger badger.Logger,
) (ports.RepoManager, error) {
	var tradeDir, jobDir string
	if len(baseDbDir) > 0 {
		tradeDir = filepath.Join(baseDbDir, tradesDir)
		jobDir = filepath.Join(baseDbDir, schedulerDir)
	}

	tradeStore, err := createDb(tradeDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening trades db: %w", err)
	}
	jobStore, err := createDb(jobDir, logger)
	if err != nil {
		tradeStore.Close()
		return nil, fmt.Errorf("opening scheduler db: %w", err)
	}

	r := &repoManager{
		tradeStore:            tradeStore,
		jobStore:              jobStore,
		stopGC:                make(chan struct{}),
		multiTradeRepository:  NewMultiTradeRepositoryImpl(tradeStore),
		singleTradeRepository: NewSingleTradeRepositoryImpl(tradeStore),
		jobRepository:         NewJobRepositoryImpl(jobStore),
	}
	if len(baseDbDir) > 0 {
		go r.runValueLogGC()
	}
	return r, nil
}

func (r *repoManager) MultiTradeRepository() domain.MultiTradeRepository {
	return r.multiTradeRepository
}

func (r *repoManager) SingleTradeRepository() domain.SingleTradeRepository {
	return r.singleTradeRepository
}

func (r *repoManager) JobRepository() domain.JobRepository {
	return r.jobRepository
}

func (r *repoManager) Close() {
	close(r.stopGC)
	r.tradeStore.Close()
	r.jobStore.Close()
}

func (r *repoManager) runValueLogGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopGC:
			return
		case <-ticker.C:
			for _, store := range []*badgerhold.Store{r.tradeStore, r.jobStore} {
				if err := store.Badger().RunValueLogGC(gcDiscardRatio); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: sequenceBandwth,
		Options:          opts,
	})
}

// update runs fn in a read-write transaction, retrying it when badger detects
// a conflict with a concurrent transaction.
func update(store *badgerhold.Store, fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
