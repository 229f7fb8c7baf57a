package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": day-partitioned JSON Lines plus a channels summary snapshot
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChannelSummary is the rolled-up state of one monitored channel.
// Keep it compact and schema-stable.
type ChannelSummary struct {
	Channel    string    `json:"channel"`
	Comments   uint64    `json:"comments"`
	Leads      uint64    `json:"leads"`
	HasThreads *bool     `json:"has_threads,omitempty"`
	LastAt     time.Time `json:"last_at"`
}
