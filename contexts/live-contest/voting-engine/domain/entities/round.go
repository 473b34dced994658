package entities

import "time"

// RoundKind separates the judged scoring track from audience ballot windows.
// Each kind keeps its own index sequence and its own single open round.
type RoundKind string

const (
	RoundKindScoring  RoundKind = "scoring"
	RoundKindAudience RoundKind = "audience"
)

func (k RoundKind) Valid() bool {
	return k == RoundKindScoring || k == RoundKindAudience
}

type RoundState string

const (
	RoundStateOpen   RoundState = "open"
	RoundStateLocked RoundState = "locked"
	RoundStateClosed RoundState = "closed"
)

type Round struct {
	Kind      RoundKind
	Index     int
	State     RoundState
	StartedAt time.Time
	Duration  time.Duration
	LockedAt  *time.Time
	ClosedAt  *time.Time
}

// Deadline is the nominal expiry instant of the round clock.
func (r Round) Deadline() time.Time {
	return r.StartedAt.Add(r.Duration)
}

// Remaining is clamped at zero; closed and locked rounds report zero.
func (r Round) Remaining(now time.Time) time.Duration {
	if r.State != RoundStateOpen {
		return 0
	}
	left := r.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (r Round) Expired(now time.Time) bool {
	return r.Duration > 0 && !now.Before(r.Deadline())
}
