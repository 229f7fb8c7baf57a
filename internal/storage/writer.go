package storage

import (
	"context"
	"sync"
	"time"

	"leadwatch/internal/hub"
	"leadwatch/internal/intent"
	logx "leadwatch/pkg/logx"
)

// Writer drains a broadcast subscription into the store and keeps the
// per-channel summaries current. Store failures are logged and skipped;
// persistence never stalls or kills the pipeline.
type Writer struct {
	store Store
	log   logx.Logger

	mu        sync.Mutex
	summaries map[string]ChannelSummary
}

// NewWriter seeds the in-memory summary counters from the store so totals
// survive restarts.
func NewWriter(ctx context.Context, store Store, log logx.Logger) (*Writer, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &Writer{store: store, log: log, summaries: map[string]ChannelSummary{}}

	existing, err := store.ChannelSummaries(ctx)
	if err != nil {
		return nil, err
	}
	for _, sum := range existing {
		w.summaries[sum.Channel] = sum
	}
	return w, nil
}

// Run consumes the subscription until the hub closes or ctx is canceled.
func (w *Writer) Run(ctx context.Context, sub *hub.Subscriber) {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case hub.KindItem:
			w.record(ctx, msg.Item)
		case hub.KindLagged:
			w.log.Warn("writer fell behind broadcast",
				logx.Uint64("skipped", msg.Skipped))
		case hub.KindClosed:
			return
		}
	}
}

func (w *Writer) record(ctx context.Context, a intent.AnalyzedComment) {
	if err := w.store.AppendComment(ctx, a); err != nil {
		w.log.Error("append comment failed",
			logx.String("channel", a.Channel),
			logx.Int("comment_id", a.CommentID),
			logx.Err(err))
	}

	w.mu.Lock()
	sum := w.summaries[a.Channel]
	sum.Channel = a.Channel
	sum.Comments++
	if a.IsLead {
		sum.Leads++
	}
	if a.AnalyzedAt.After(sum.LastAt) {
		sum.LastAt = a.AnalyzedAt
	}
	w.summaries[a.Channel] = sum
	w.mu.Unlock()

	if err := w.store.PutChannelSummary(ctx, sum); err != nil {
		w.log.Error("update channel summary failed",
			logx.String("channel", a.Channel),
			logx.Err(err))
	}
}

// NotifyCapability records the has-threads flag, so channels that never
// produced a comment still appear in the summaries.
func (w *Writer) NotifyCapability(channel string, hasThreads bool) {
	w.mu.Lock()
	sum := w.summaries[channel]
	sum.Channel = channel
	sum.HasThreads = &hasThreads
	w.summaries[channel] = sum
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.PutChannelSummary(ctx, sum); err != nil {
		w.log.Error("update channel capability failed",
			logx.String("channel", channel),
			logx.Err(err))
	}
}

// FlushSummaries rewrites every known summary. Scheduled periodically to
// repair snapshots after partial write failures.
func (w *Writer) FlushSummaries(ctx context.Context) error {
	w.mu.Lock()
	list := make([]ChannelSummary, 0, len(w.summaries))
	for _, sum := range w.summaries {
		list = append(list, sum)
	}
	w.mu.Unlock()

	var firstErr error
	for _, sum := range list {
		if err := w.store.PutChannelSummary(ctx, sum); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
