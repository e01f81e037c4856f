package domain

import (
	"fmt"
	"time"
)

// Job is the persisted wake-up of a unit: the step function registered for
// Queue is invoked with UnitID at or after RunAt. There is at most one job
// per queue and unit, scheduling again replaces it.
type Job struct {
	ID       string
	Queue    string
	UnitID   string
	RunAt    int64 `badgerhold:"index"`
	Seq      string
	Attempts int
}

// JobID returns the key of the job of the given unit in the given queue.
func JobID(queue, unitID string) string {
	return fmt.Sprintf("%s/%s", queue, unitID)
}

// NewJob ...
func NewJob(queue, unitID, seq string, runAt time.Time) Job {
	return Job{
		ID:     JobID(queue, unitID),
		Queue:  queue,
		UnitID: unitID,
		RunAt:  runAt.UnixNano(),
		Seq:    seq,
	}
}

// RunAtTime ...
func (j Job) RunAtTime() time.Time {
	return time.Unix(0, j.RunAt)
}

// IsDue returns whether the job should run at the given time.
func (j Job) IsDue(now time.Time) bool {
	return j.RunAt <= now.UnixNano()
}
