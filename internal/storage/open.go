package storage

import (
	"context"
	"errors"
	"strings"

	"leadwatch/internal/intent"
	logx "leadwatch/pkg/logx"
)

// Store is the persistence API used by the durable writer.
type Store interface {
	AppendComment(ctx context.Context, a intent.AnalyzedComment) error
	PutChannelSummary(ctx context.Context, s ChannelSummary) error
	ChannelSummaries(ctx context.Context) ([]ChannelSummary, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
