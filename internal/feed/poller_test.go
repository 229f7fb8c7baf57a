package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "leadwatch/pkg/logx"
)

type fakeSource struct {
	mu sync.Mutex

	hasThreads   map[string]bool
	capErr       error
	capChecks    int
	posts        map[string][]int
	replies      map[ThreadKey][]Reply
	repliesErr   map[ThreadKey]error
	recentCalls  int
	repliesCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		hasThreads: map[string]bool{},
		posts:      map[string][]int{},
		replies:    map[ThreadKey][]Reply{},
		repliesErr: map[ThreadKey]error{},
	}
}

func (f *fakeSource) HasThreads(ctx context.Context, channel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capChecks++
	if f.capErr != nil {
		return false, f.capErr
	}
	return f.hasThreads[channel], nil
}

func (f *fakeSource) RecentPosts(ctx context.Context, channel string, limit int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls++
	return f.posts[channel], nil
}

func (f *fakeSource) Replies(ctx context.Context, channel string, postID int, limit int) ([]Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repliesCalls++
	key := ThreadKey{Channel: channel, PostID: postID}
	if err := f.repliesErr[key]; err != nil {
		return nil, err
	}
	return f.replies[key], nil
}

type capRecorder struct {
	mu    sync.Mutex
	notes map[string]bool
}

func (c *capRecorder) NotifyCapability(channel string, hasThreads bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notes == nil {
		c.notes = map[string]bool{}
	}
	c.notes[channel] = hasThreads
}

func testPoller(src Source, caps CapabilitySink, out chan RawComment, channels ...string) *Poller {
	return NewPoller(PollerConfig{Channels: channels}, src, caps, out, logx.Nop())
}

func drain(out chan RawComment) []RawComment {
	var got []RawComment
	for {
		select {
		case c := <-out:
			got = append(got, c)
		default:
			return got
		}
	}
}

func TestPollerEmitsOnlyNewComments(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.hasThreads["devnews"] = true
	src.posts["devnews"] = []int{10}
	key := ThreadKey{Channel: "devnews", PostID: 10}
	src.replies[key] = []Reply{
		{ID: 1, Author: "ann", Text: "first"},
		{ID: 2, Author: "bob", Text: "second"},
	}

	out := make(chan RawComment, 16)
	p := testPoller(src, nil, out, "devnews")

	if err := p.pollChannel(context.Background(), "devnews"); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	if got := drain(out); len(got) != 2 {
		t.Fatalf("pass 1 emitted %d comments, want 2", len(got))
	}

	// Second pass with one extra reply: only the new one survives the watermark.
	src.mu.Lock()
	src.replies[key] = append(src.replies[key], Reply{ID: 3, Author: "cho", Text: "third"})
	src.mu.Unlock()

	if err := p.pollChannel(context.Background(), "devnews"); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("pass 2 emitted %d comments, want 1", len(got))
	}
	if got[0].CommentID != 3 || got[0].Channel != "devnews" || got[0].PostID != 10 {
		t.Fatalf("unexpected comment: %+v", got[0])
	}
	if wm := p.seen.Watermark(key); wm != 3 {
		t.Fatalf("watermark = %d, want 3", wm)
	}
}

func TestPollerCapabilityFalseSkipsChannel(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.hasThreads["quiet"] = false
	src.posts["quiet"] = []int{1, 2}

	out := make(chan RawComment, 4)
	caps := &capRecorder{}
	p := testPoller(src, caps, out, "quiet")

	for i := 0; i < 3; i++ {
		if err := p.pollChannel(context.Background(), "quiet"); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	if src.recentCalls != 0 {
		t.Fatalf("posts fetched %d times for a channel without threads", src.recentCalls)
	}
	if src.capChecks != 1 {
		t.Fatalf("capability checked %d times, want 1 (cached)", src.capChecks)
	}
	caps.mu.Lock()
	defer caps.mu.Unlock()
	if v, ok := caps.notes["quiet"]; !ok || v {
		t.Fatalf("capability sink notes = %v, want quiet=false recorded", caps.notes)
	}
}

func TestPollerCapabilityErrorIsRetried(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.capErr = errors.New("resolve failed")

	out := make(chan RawComment, 4)
	p := testPoller(src, nil, out, "devnews")

	if err := p.pollChannel(context.Background(), "devnews"); err == nil {
		t.Fatal("expected error from failed capability check")
	}

	// Only success caches; a later pass checks again.
	src.mu.Lock()
	src.capErr = nil
	src.hasThreads["devnews"] = true
	src.mu.Unlock()

	if err := p.pollChannel(context.Background(), "devnews"); err != nil {
		t.Fatalf("pass after recovery: %v", err)
	}
	if src.capChecks != 2 {
		t.Fatalf("capability checked %d times, want 2", src.capChecks)
	}
}

func TestPollerReplyErrorSkipsPostOnly(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.hasThreads["devnews"] = true
	src.posts["devnews"] = []int{1, 2}
	bad := ThreadKey{Channel: "devnews", PostID: 1}
	good := ThreadKey{Channel: "devnews", PostID: 2}
	src.repliesErr[bad] = errors.New("flood wait")
	src.replies[good] = []Reply{{ID: 5, Author: "ann", Text: "hi"}}

	out := make(chan RawComment, 4)
	p := testPoller(src, nil, out, "devnews")

	if err := p.pollChannel(context.Background(), "devnews"); err != nil {
		t.Fatalf("pollChannel: %v", err)
	}

	got := drain(out)
	if len(got) != 1 || got[0].PostID != 2 {
		t.Fatalf("expected only the healthy post's reply, got %+v", got)
	}
	if wm := p.seen.Watermark(bad); wm != 0 {
		t.Fatalf("failed post's watermark moved to %d", wm)
	}

	// The failed post recovers on the next pass.
	src.mu.Lock()
	delete(src.repliesErr, bad)
	src.replies[bad] = []Reply{{ID: 9, Author: "bob", Text: "late"}}
	src.mu.Unlock()

	if err := p.pollChannel(context.Background(), "devnews"); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	got = drain(out)
	if len(got) != 1 || got[0].CommentID != 9 {
		t.Fatalf("expected recovered reply, got %+v", got)
	}
}

func TestPollerRunClosesQueueOnCancel(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.hasThreads["devnews"] = true

	out := make(chan RawComment, 4)
	p := NewPoller(PollerConfig{Channels: []string{"devnews"}, Interval: 10 * time.Millisecond}, src, nil, out, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, ok := <-out; ok {
		t.Fatal("out queue should be closed after Run returns")
	}
}
