package model

import "time"

type TargetKind string

const (
	KindCount   TargetKind = "count"
	KindStatus  TargetKind = "status"
	KindReviews TargetKind = "reviews"
)

// Parser turns a JSON body into a target value, rejecting bodies that do not
// match the expected shape.
type Parser func(body []byte) (any, error)

// PollTarget describes one pollable widget. ID is also the display element id.
type PollTarget struct {
	ID           string
	Kind         TargetKind
	LiveURL      string
	SnapshotPath string
	Default      any
	Interval     time.Duration
	Parse        Parser
}
