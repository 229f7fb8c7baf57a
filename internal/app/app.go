// Package app wires the harvesting pipeline together: config, logging,
// the Telegram source, the poller, the classification stage, the broadcast
// hub and its subscribers.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"leadwatch/internal/classify"
	"leadwatch/internal/config"
	"leadwatch/internal/dashboard"
	"leadwatch/internal/feed"
	"leadwatch/internal/hub"
	"leadwatch/internal/runtime/supervisor"
	"leadwatch/internal/source/telegram"
	"leadwatch/internal/storage"
	logx "leadwatch/pkg/logx"
)

const (
	envBotToken  = "TELEGRAM_BOT_TOKEN"
	envGeminiKey = "GEMINI_API_KEY"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	source *telegram.Source
	poller *feed.Poller
	stage  *classify.Stage
	hub    *hub.Hub
	state  *dashboard.State

	store  storage.Store
	writer *storage.Writer
	sched  *cron.Cron

	queue chan feed.RawComment
}

// New builds the full pipeline from the config file. Secrets come from the
// environment, never from the file.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	token := strings.TrimSpace(os.Getenv(envBotToken))
	if token == "" {
		return nil, fmt.Errorf("%s is not set", envBotToken)
	}
	apiKey := strings.TrimSpace(os.Getenv(envGeminiKey))
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", envGeminiKey)
	}

	src, err := telegram.New(telegram.Config{
		Token:         token,
		RatePerSec:    cfg.Telegram.RatePerSec,
		BufferPosts:   cfg.Telegram.PostsPerPass,
		BufferReplies: cfg.Telegram.RepliesPerPost,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	callTimeout, err := config.ParseDurationOrDefault("gemini.call_timeout", cfg.Gemini.CallTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	classifier, err := classify.NewGemini(ctx, classify.GeminiConfig{
		APIKey:      apiKey,
		Model:       cfg.Gemini.Model,
		CallTimeout: callTimeout,
	})
	if err != nil {
		return nil, err
	}

	// Storage (optional)
	var (
		store  storage.Store
		writer *storage.Writer
	)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		writer, err = storage.NewWriter(ctx, st, log.With(logx.String("comp", "writer")))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	h := hub.New(cfg.Pipeline.HubBuffer)
	state := dashboard.NewState(cfg.Pipeline.RecentBuffer, log.With(logx.String("comp", "dashboard")))

	queueSize := cfg.Pipeline.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	queue := make(chan feed.RawComment, queueSize)

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	var caps feed.CapabilitySink
	if writer != nil {
		caps = writer
	}
	poller := feed.NewPoller(pcfg, src, caps, queue, log.With(logx.String("comp", "feed")))

	retryBase, err := config.ParseDurationOrDefault("gemini.retry_base", cfg.Gemini.RetryBase, 5*time.Second)
	if err != nil {
		return nil, err
	}
	stage := classify.NewStage(classify.StageConfig{
		MaxConcurrent: cfg.Gemini.MaxConcurrent,
		RetryMax:      cfg.Gemini.RetryMax,
		RetryBase:     retryBase,
	}, classifier, queue, h, log.With(logx.String("comp", "classify")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		source:  src,
		poller:  poller,
		stage:   stage,
		hub:     h,
		state:   state,
		store:   store,
		writer:  writer,
		queue:   queue,
	}, nil
}

// Dashboard exposes the live aggregation view.
func (a *App) Dashboard() *dashboard.State { return a.state }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapPollerConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := config.ParseDurationOrDefault("gemini.retry_base", cfg.Gemini.RetryBase, 5*time.Second); err != nil {
			return err
		}
		if _, err := config.ParseDurationOrDefault("gemini.call_timeout", cfg.Gemini.CallTimeout, 60*time.Second); err != nil {
			return err
		}
		return nil
	})

	// Telebot's update loop can exit unexpectedly; run it under a restart
	// loop so the source self-heals.
	a.sup.GoRestart("telegram.source", func(c context.Context) error {
		a.source.Run(c)
		if c.Err() == nil {
			return errors.New("telegram polling stopped unexpectedly")
		}
		return nil
	})

	a.sup.Go("feed.poller", func(c context.Context) error {
		return a.poller.Run(c)
	})

	a.sup.Go0("classify.stage", func(c context.Context) {
		a.stage.Run(c)
	})

	stateSub := a.hub.Subscribe()
	a.sup.Go0("dashboard", func(c context.Context) {
		a.state.Run(c, stateSub)
	})

	if a.writer != nil {
		writerSub := a.hub.Subscribe()
		a.sup.Go0("storage.writer", func(c context.Context) {
			a.writer.Run(c, writerSub)
		})
		if err := a.startSummarySchedule(); err != nil {
			return err
		}
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe()
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("channels", len(a.cfgm.Get().Telegram.Channels)),
		logx.String("model", a.cfgm.Get().Gemini.Model))
	return nil
}

// applyReload applies the hot-reloadable config sections. Pipeline sizing,
// channels, and storage wiring need a restart; only logging is live.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.log.Info("config reloaded; channel/pipeline changes take effect after restart")
}

func (a *App) startSummarySchedule() error {
	spec := strings.TrimSpace(a.cfgm.Get().Storage.SummarySchedule)
	if spec == "" {
		spec = "0 * * * *"
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.writer.FlushSummaries(ctx); err != nil {
			a.log.Warn("summary flush failed", logx.Err(err))
		} else {
			a.log.Debug("channel summaries flushed")
		}
	})
	if err != nil {
		return fmt.Errorf("storage.summary_schedule: invalid %q: %w", spec, err)
	}
	c.Start()
	a.sched = c
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	if a.sched != nil {
		stopped := a.sched.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}

	// Canceling the supervisor unwinds the pipeline front to back: the
	// poller closes the queue, the stage drains and closes the hub, and
	// the subscribers see the closed signal.
	a.sup.Cancel()
	if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("shutdown incomplete", logx.Err(err))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
