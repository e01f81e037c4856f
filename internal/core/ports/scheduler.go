package ports

import (
	"context"
	"time"
)

// Scheduler arranges for the step function of a queue to be invoked with the
// given unit id at or after runAt. Scheduling a unit that already has a
// pending wake-up in the same queue replaces it.
type Scheduler interface {
	Schedule(ctx context.Context, queue, unitID string, runAt time.Time) error
}
