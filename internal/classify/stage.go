package classify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"leadwatch/internal/feed"
	"leadwatch/internal/hub"
	"leadwatch/internal/intent"
	"leadwatch/pkg/logx"
)

// StageConfig sizes the classification stage.
type StageConfig struct {
	// MaxConcurrent bounds in-flight classifier calls.
	MaxConcurrent int

	// RetryMax is how many extra attempts a rate-limited call gets.
	RetryMax int

	// RetryBase is the first backoff delay; it doubles per retry.
	RetryBase time.Duration
}

func (c StageConfig) withDefaults() StageConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 4
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	return c
}

// Stage drains the raw-comment queue, classifies each comment under a
// concurrency permit, and publishes exactly one analyzed comment per input
// to the hub. Classifier failures never drop a comment: they produce a
// neutral fallback instead.
type Stage struct {
	cfg StageConfig
	cls Classifier
	in  <-chan feed.RawComment
	hub *hub.Hub
	log logx.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewStage(cfg StageConfig, cls Classifier, in <-chan feed.RawComment, h *hub.Hub, log logx.Logger) *Stage {
	cfg = cfg.withDefaults()
	return &Stage{
		cfg: cfg,
		cls: cls,
		in:  in,
		hub: h,
		log: log,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Run consumes the queue until it is closed or ctx is canceled, waits for
// in-flight classifications, then closes the hub. The stage is the hub's
// only publisher.
func (s *Stage) Run(ctx context.Context) {
	defer s.hub.Close()

	for c := range s.in {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		s.wg.Add(1)
		go func(c feed.RawComment) {
			defer s.wg.Done()
			s.handle(ctx, c)
		}(c)
	}
	s.wg.Wait()
}

func (s *Stage) handle(ctx context.Context, c feed.RawComment) {
	res, err := s.classifyWithRetry(ctx, c)

	// The permit covers the external call only; publishing must not hold
	// back other classifications.
	s.sem.Release(1)

	now := time.Now().UTC()
	var out intent.AnalyzedComment
	if err != nil {
		s.log.Warn("classification failed, using neutral fallback",
			logx.String("channel", c.Channel),
			logx.Int("comment_id", c.CommentID),
			logx.Err(err))
		out = intent.Fallback(c, now)
	} else {
		out = intent.AnalyzedComment{RawComment: c, Classification: res, AnalyzedAt: now}
	}

	if out.IsLead {
		s.log.Info("lead detected",
			logx.String("channel", c.Channel),
			logx.Int("comment_id", c.CommentID),
			logx.String("intent", out.Intent.String()),
			logx.Float64("lead_score", out.LeadScore))
	}
	s.hub.Publish(out)
}

func (s *Stage) classifyWithRetry(ctx context.Context, c feed.RawComment) (intent.Classification, error) {
	delay := s.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		res, err := s.cls.Classify(ctx, c)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= s.cfg.RetryMax {
			return intent.Classification{}, err
		}

		s.log.Debug("rate limited, backing off",
			logx.String("channel", c.Channel),
			logx.Int("comment_id", c.CommentID),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return intent.Classification{}, ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
