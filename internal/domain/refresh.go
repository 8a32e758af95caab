package domain

import "time"

type Generation uint64

type RefreshSource string

const (
	RefreshSourceManual    RefreshSource = "manual"
	RefreshSourceOperation RefreshSource = "operation"
	RefreshSourceDelayed   RefreshSource = "delayed"
	RefreshSourceRemote    RefreshSource = "remote"
)

type RefreshTrigger struct {
	Generation  Generation
	Source      RefreshSource
	ScheduledAt time.Time
	FireAt      time.Time
}

// NewerThan reports whether the trigger carries a generation the consumer has not seen yet.
func (t RefreshTrigger) NewerThan(seen Generation) bool {
	return t.Generation > seen
}
