package storage

// Package storage persists the classified-comment stream.
//
// It currently supports:
//   - Append-only classified comment records (day-partitioned JSONL or SQLite)
//   - Per-channel summary upserts (counters + thread capability)
