package storage

import "errors"

// DayLockStatus is the outcome of trying to claim a new planning day for a workspace.
type DayLockStatus string

const (
	DayAlreadyCurrent DayLockStatus = "already_current"
	DayLost           DayLockStatus = "lost"
	DayAcquired       DayLockStatus = "acquired"
)

// ErrDayLockContention means another device holds the day marker row right now.
var ErrDayLockContention = errors.New("day lock contention")
