package config

// Config is the full application configuration.
//
// Secrets (bot token, Gemini API key) are NOT part of the file; they come
// from the environment so config files stay safe to commit and reload.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram Telegram `json:"telegram"`
	Gemini   Gemini   `json:"gemini"`
	Pipeline Pipeline `json:"pipeline"`
	Storage  Storage  `json:"storage"`
	Logging  Logging  `json:"logging"`
}

// Telegram configures the channel harvesting side.
type Telegram struct {
	// Channels is the list of public channel usernames to monitor (no "@").
	Channels []string `json:"channels"`

	// PollInterval is the sleep between full polling rounds. Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`

	// ChannelPassTimeout bounds one channel's whole polling pass. Default "300s".
	ChannelPassTimeout string `json:"channel_pass_timeout,omitempty"`

	// ReplyTimeout bounds a single reply fetch. Default "5s".
	ReplyTimeout string `json:"reply_timeout,omitempty"`

	// CapabilityTimeout bounds the linked-discussion-group check. Default "10s".
	CapabilityTimeout string `json:"capability_timeout,omitempty"`

	// PostsPerPass caps how many recent posts are examined per pass. Default 200.
	PostsPerPass int `json:"posts_per_pass,omitempty"`

	// RepliesPerPost caps how many replies are read per post. Default 50.
	RepliesPerPost int `json:"replies_per_post,omitempty"`

	// RatePerSec paces Telegram API calls. Default 10.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// Gemini configures the classification collaborator.
type Gemini struct {
	Model string `json:"model"`

	// MaxConcurrent bounds in-flight classification calls. Default 5.
	MaxConcurrent int `json:"max_concurrent,omitempty"`

	// RetryMax is how many times a rate-limited call is retried. Default 4.
	RetryMax int `json:"retry_max,omitempty"`

	// RetryBase is the first backoff delay; it doubles per attempt. Default "5s".
	RetryBase string `json:"retry_base,omitempty"`

	// CallTimeout bounds a single classification call. Default "60s".
	CallTimeout string `json:"call_timeout,omitempty"`
}

// Pipeline configures queue and buffer sizing.
type Pipeline struct {
	// QueueSize is the raw-comment work queue capacity. Default 256.
	QueueSize int `json:"queue_size,omitempty"`

	// HubBuffer is the per-subscriber broadcast buffer. Default 256.
	HubBuffer int `json:"hub_buffer,omitempty"`

	// RecentBuffer is how many classified comments the live view keeps. Default 100.
	RecentBuffer int `json:"recent_buffer,omitempty"`
}

// Storage configures the durable writer.
//
// Driver values:
//   - "file": day-partitioned JSONL plus a channels summary file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the durable writer is disabled.
type Storage struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`

	// BusyTimeout applies to the sqlite driver only. Default "5s".
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// SummarySchedule is a cron spec for periodic summary regeneration
	// on top of the per-item updates. Default "0 * * * *" (hourly).
	SummarySchedule string `json:"summary_schedule,omitempty"`
}

type Logging struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
