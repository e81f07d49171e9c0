package model

import "time"

// BackupHandle describes a stored backup artifact: where it lives, what
// it includes, and the retention window it is subject to (spec.md §3,
// §4.G).
type BackupHandle struct {
	BackupID   string    `json:"backupId"`
	CreatedAt  time.Time `json:"createdAt"`
	Provider   string    `json:"providerName"`
	Location   string    `json:"location"`
	ObjectID   string    `json:"objectId"`
	ObjectName string    `json:"objectName"`

	StreamVersion int64 `json:"streamVersion"`
	EventCount    int   `json:"eventCount"`
	SizeBytes     int64 `json:"sizeBytes"`

	IncludesSnapshots         bool `json:"includesSnapshots"`
	IncludesObjectDocument    bool `json:"includesObjectDocument"`
	IncludesTerminatedStreams bool `json:"includesTerminatedStreams"`
	IsCompressed              bool `json:"isCompressed"`
	Checksum                  string `json:"checksum"`

	Retention time.Duration     `json:"retention"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Expired reports whether the handle's retention window has elapsed as
// of now (spec.md §4.G).
func (h BackupHandle) Expired(now time.Time) bool {
	if h.Retention <= 0 {
		return false
	}
	return h.CreatedAt.Add(h.Retention).Compare(now) <= 0
}
