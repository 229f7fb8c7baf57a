package app

import (
	"fmt"
	"strings"
	"time"

	"leadwatch/internal/config"
	"leadwatch/internal/feed"
	"leadwatch/internal/storage"
)

func mapPollerConfig(cfg *config.Config) (feed.PollerConfig, error) {
	interval, err := config.ParseDurationOrDefault("telegram.poll_interval", cfg.Telegram.PollInterval, 60*time.Second)
	if err != nil {
		return feed.PollerConfig{}, err
	}
	passTimeout, err := config.ParseDurationOrDefault("telegram.channel_pass_timeout", cfg.Telegram.ChannelPassTimeout, 300*time.Second)
	if err != nil {
		return feed.PollerConfig{}, err
	}
	replyTimeout, err := config.ParseDurationOrDefault("telegram.reply_timeout", cfg.Telegram.ReplyTimeout, 5*time.Second)
	if err != nil {
		return feed.PollerConfig{}, err
	}
	capTimeout, err := config.ParseDurationOrDefault("telegram.capability_timeout", cfg.Telegram.CapabilityTimeout, 10*time.Second)
	if err != nil {
		return feed.PollerConfig{}, err
	}

	return feed.PollerConfig{
		Channels:          cfg.Telegram.Channels,
		Interval:          interval,
		PassTimeout:       passTimeout,
		ReplyTimeout:      replyTimeout,
		CapabilityTimeout: capTimeout,
		PostsPerPass:      cfg.Telegram.PostsPerPass,
		RepliesPerPost:    cfg.Telegram.RepliesPerPost,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(cfg.Storage.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}
