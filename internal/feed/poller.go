package feed

import (
	"context"
	"time"

	logx "leadwatch/pkg/logx"
)

// PollerConfig holds resolved (already-parsed) polling knobs.
type PollerConfig struct {
	Channels          []string
	Interval          time.Duration
	PassTimeout       time.Duration
	ReplyTimeout      time.Duration
	CapabilityTimeout time.Duration
	PostsPerPass      int
	RepliesPerPost    int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 300 * time.Second
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 5 * time.Second
	}
	if c.CapabilityTimeout <= 0 {
		c.CapabilityTimeout = 10 * time.Second
	}
	if c.PostsPerPass <= 0 {
		c.PostsPerPass = 200
	}
	if c.RepliesPerPost <= 0 {
		c.RepliesPerPost = 50
	}
	return c
}

// Poller walks configured channels sequentially on a fixed interval and
// pushes new comments onto the bounded work queue.
//
// One channel pass never runs concurrently with another: this bounds load
// on the Telegram side and keeps the Tracker single-owner.
type Poller struct {
	cfg  PollerConfig
	src  Source
	caps CapabilitySink // may be nil
	out  chan<- RawComment
	log  logx.Logger

	seen *Tracker

	// hasThreads caches the capability flag per channel for the process
	// lifetime; only a successful check populates it.
	hasThreads map[string]bool
}

func NewPoller(cfg PollerConfig, src Source, caps CapabilitySink, out chan<- RawComment, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cfg:        cfg.withDefaults(),
		src:        src,
		caps:       caps,
		out:        out,
		log:        log,
		seen:       NewTracker(),
		hasThreads: make(map[string]bool),
	}
}

// Run polls until ctx is canceled. It owns the out queue and closes it on
// return so the downstream dispatcher observes end-of-stream.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.out)

	p.log.Info("poller started", logx.Int("channels", len(p.cfg.Channels)), logx.Duration("interval", p.cfg.Interval))

	for {
		for _, channel := range p.cfg.Channels {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			passCtx, cancel := context.WithTimeout(ctx, p.cfg.PassTimeout)
			err := p.pollChannel(passCtx, channel)
			cancel()
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				// One channel's failed pass never aborts the round; its
				// watermarks stay at the last successfully advanced values.
				p.log.Error("channel pass failed", logx.String("channel", channel), logx.Err(err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
	}
}

func (p *Poller) pollChannel(ctx context.Context, channel string) error {
	ok, err := p.capability(ctx, channel)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	posts, err := p.src.RecentPosts(ctx, channel, p.cfg.PostsPerPass)
	if err != nil {
		return err
	}

	for _, postID := range posts {
		replies, err := p.fetchReplies(ctx, channel, postID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Skipped for this pass only; the thread's watermark is untouched.
			p.log.Warn("replies fetch failed", logx.String("channel", channel), logx.Int("post_id", postID), logx.Err(err))
			continue
		}

		key := ThreadKey{Channel: channel, PostID: postID}
		maxID := p.seen.Watermark(key)

		for _, r := range replies {
			if !p.seen.ShouldEmit(key, r.ID) {
				continue
			}
			if r.ID > maxID {
				maxID = r.ID
			}

			c := RawComment{
				Channel:   channel,
				PostID:    postID,
				CommentID: r.ID,
				Author:    r.Author,
				Username:  r.Username,
				Phone:     r.Phone,
				Text:      r.Text,
				Date:      r.Date,
			}
			select {
			case p.out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// One advance per thread per pass, after all its replies.
		p.seen.Advance(key, maxID)
	}

	return nil
}

// capability resolves (and caches) whether a channel can receive comments.
// A failed check is retried on the next pass; only success is cached.
func (p *Poller) capability(ctx context.Context, channel string) (bool, error) {
	if ok, cached := p.hasThreads[channel]; cached {
		return ok, nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CapabilityTimeout)
	ok, err := p.src.HasThreads(cctx, channel)
	cancel()
	if err != nil {
		return false, err
	}

	p.hasThreads[channel] = ok
	p.log.Info("channel capability resolved", logx.String("channel", channel), logx.Bool("has_threads", ok))
	if p.caps != nil {
		p.caps.NotifyCapability(channel, ok)
	}
	return ok, nil
}

func (p *Poller) fetchReplies(ctx context.Context, channel string, postID int) ([]Reply, error) {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReplyTimeout)
	defer cancel()
	return p.src.Replies(rctx, channel, postID, p.cfg.RepliesPerPost)
}
