package model

import "time"

type Source string

const (
	SourceLive     Source = "live"
	SourceSnapshot Source = "snapshot"
	SourceDefault  Source = "default"
)

// MetricResult is the resolved value of one poll cycle.
type MetricResult struct {
	Value      any       `json:"value"`
	Source     Source    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// PollState is the per-target memory of the last completed cycle.
type PollState struct {
	LastValue     any       `json:"last_value"`
	LastSource    Source    `json:"last_source"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

func (s PollState) Resolved() bool {
	return s.LastValue != nil
}
