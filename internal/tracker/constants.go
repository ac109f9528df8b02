package tracker

import "time"

const ReserveSubmittedAction = "RESERVE_SUBMITTED"

const (
	DefaultPollInterval    = 4 * time.Second
	DefaultBlockWindowSize = 500
	RateLimitBackoff       = 500 * time.Millisecond
)
