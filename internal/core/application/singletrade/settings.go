package singletrade

import (
	"fmt"
	"time"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

const (
	defaultChallengeTimeout       = 90 * time.Second
	defaultPollInterval           = 5 * time.Second
	defaultDelayedPollInterval    = 30 * time.Second
	defaultBackloggedPollInterval = 2 * time.Minute
	defaultDelayedAfter           = 2 * time.Minute
	defaultBackloggedAfter        = 15 * time.Minute
	defaultMaxDuration            = time.Hour
	defaultMaxOfferItems          = 4
)

// Settings tunes the timings of the single trade state machine. Zero values
// are replaced by defaults.
type Settings struct {
	// ChallengeTimeout is how long a trade stays paused waiting for a human.
	ChallengeTimeout time.Duration
	// PollInterval, DelayedPollInterval and BackloggedPollInterval are the
	// poll frequencies of a trade waiting for completion, by urgency status.
	PollInterval           time.Duration
	DelayedPollInterval    time.Duration
	BackloggedPollInterval time.Duration
	// DelayedAfter and BackloggedAfter are the elapsed times since the start
	// of the trade after which it's marked Delayed and Backlogged.
	DelayedAfter    time.Duration
	BackloggedAfter time.Duration
	// MaxDuration is the elapsed time after which a trade still pending on
	// the platform is declined and failed.
	MaxDuration time.Duration
	// MaxOfferItems is the platform's per-trade item cap of each offer.
	MaxOfferItems int
}

func (s Settings) withDefaults() Settings {
	if s.ChallengeTimeout <= 0 {
		s.ChallengeTimeout = defaultChallengeTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.DelayedPollInterval <= 0 {
		s.DelayedPollInterval = defaultDelayedPollInterval
	}
	if s.BackloggedPollInterval <= 0 {
		s.BackloggedPollInterval = defaultBackloggedPollInterval
	}
	if s.DelayedAfter <= 0 {
		s.DelayedAfter = defaultDelayedAfter
	}
	if s.BackloggedAfter <= 0 {
		s.BackloggedAfter = defaultBackloggedAfter
	}
	if s.MaxDuration <= 0 {
		s.MaxDuration = defaultMaxDuration
	}
	if s.MaxOfferItems <= 0 {
		s.MaxOfferItems = defaultMaxOfferItems
	}
	return s
}

func (s Settings) validate() error {
	if s.DelayedAfter >= s.BackloggedAfter {
		return fmt.Errorf("delayed threshold must be lower than backlogged one")
	}
	if s.BackloggedAfter >= s.MaxDuration {
		return fmt.Errorf("backlogged threshold must be lower than max duration")
	}
	return nil
}

// escalation returns the urgency status of a trade pending for the given
// elapsed time, and how long to wait before polling it again.
func (s Settings) escalation(
	elapsed time.Duration,
) (domain.SingleTradeStatus, time.Duration) {
	switch {
	case elapsed >= s.BackloggedAfter:
		return domain.SingleTradeStatusBacklogged, s.BackloggedPollInterval
	case elapsed >= s.DelayedAfter:
		return domain.SingleTradeStatusDelayed, s.DelayedPollInterval
	default:
		return domain.SingleTradeStatusProcessing, s.PollInterval
	}
}
