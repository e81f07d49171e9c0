package model

import "time"

// RebuildStrategy names the live-migration strategy a projection rebuild
// uses (spec.md §3).
type RebuildStrategy string

const (
	RebuildBlockingWithCatchUp RebuildStrategy = "BlockingWithCatchUp"
	RebuildBlueGreen           RebuildStrategy = "BlueGreen"
)

// RebuildToken is a time-bounded capability to drive one projection's
// rebuild state machine. Expiry lets a stuck rebuild be recovered without
// a human in the loop (spec.md §4.I, §8 invariant 9).
type RebuildToken struct {
	ProjectionName string          `json:"projectionName"`
	ObjectID       string          `json:"objectId"`
	TokenID        string          `json:"tokenId"`
	Strategy       RebuildStrategy `json:"strategy"`
	IssuedAt       time.Time       `json:"issuedAt"`
	ExpiresAt      time.Time       `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry as of now.
func (t RebuildToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
