package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadwatch/internal/hub"
	"leadwatch/internal/intent"
	logx "leadwatch/pkg/logx"
)

type memStore struct {
	mu        sync.Mutex
	comments  []intent.AnalyzedComment
	summaries map[string]ChannelSummary
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{summaries: map[string]ChannelSummary{}}
}

func (m *memStore) AppendComment(ctx context.Context, a intent.AnalyzedComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.comments = append(m.comments, a)
	return nil
}

func (m *memStore) PutChannelSummary(ctx context.Context, s ChannelSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.Channel] = s
	return nil
}

func (m *memStore) ChannelSummaries(ctx context.Context) ([]ChannelSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChannelSummary, 0, len(m.summaries))
	for _, s := range m.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) summary(channel string) ChannelSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[channel]
}

func (m *memStore) commentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comments)
}

func runWriter(t *testing.T, w *Writer, items []intent.AnalyzedComment) {
	t.Helper()

	h := hub.New(len(items) + 1)
	sub := h.Subscribe()

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), sub)
		close(done)
	}()

	for _, a := range items {
		h.Publish(a)
	}
	h.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not stop after hub close")
	}
}

func TestWriterPersistsAndCounts(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	w, err := NewWriter(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	runWriter(t, w, []intent.AnalyzedComment{
		testComment(1, intent.IntentBuying),
		testComment(2, intent.IntentNeutral),
		testComment(3, intent.IntentProblem),
	})

	if st.commentCount() != 3 {
		t.Fatalf("persisted %d comments, want 3", st.commentCount())
	}
	sum := st.summary("acme_support")
	if sum.Comments != 3 || sum.Leads != 2 {
		t.Fatalf("summary = %+v, want comments 3 leads 2", sum)
	}
	if sum.LastAt.IsZero() {
		t.Fatal("last_at not recorded")
	}
}

func TestWriterSeedsFromExistingSummaries(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.summaries["acme_support"] = ChannelSummary{Channel: "acme_support", Comments: 10, Leads: 4}

	w, err := NewWriter(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	runWriter(t, w, []intent.AnalyzedComment{testComment(1, intent.IntentBuying)})

	sum := st.summary("acme_support")
	if sum.Comments != 11 || sum.Leads != 5 {
		t.Fatalf("summary = %+v, want comments 11 leads 5", sum)
	}
}

func TestWriterAppendFailureDoesNotStopStream(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	st.appendErr = errors.New("disk full")

	w, err := NewWriter(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	runWriter(t, w, []intent.AnalyzedComment{
		testComment(1, intent.IntentNeutral),
		testComment(2, intent.IntentNeutral),
	})

	// Appends failed but the summary still advanced for both items.
	if st.commentCount() != 0 {
		t.Fatalf("persisted %d comments, want 0", st.commentCount())
	}
	if sum := st.summary("acme_support"); sum.Comments != 2 {
		t.Fatalf("summary = %+v, want comments 2", sum)
	}
}

func TestWriterNotifyCapability(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	w, err := NewWriter(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	w.NotifyCapability("quiet_channel", false)

	sum := st.summary("quiet_channel")
	if sum.HasThreads == nil || *sum.HasThreads {
		t.Fatalf("summary = %+v, want has_threads false", sum)
	}
	if sum.Comments != 0 {
		t.Fatalf("summary = %+v, want zero comments", sum)
	}
}

func TestWriterFlushSummaries(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	w, err := NewWriter(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	runWriter(t, w, []intent.AnalyzedComment{testComment(1, intent.IntentNeutral)})

	// Wipe the store-side snapshot, then flush to repair it.
	st.mu.Lock()
	st.summaries = map[string]ChannelSummary{}
	st.mu.Unlock()

	if err := w.FlushSummaries(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sum := st.summary("acme_support"); sum.Comments != 1 {
		t.Fatalf("summary = %+v, want comments 1 after flush", sum)
	}
}
