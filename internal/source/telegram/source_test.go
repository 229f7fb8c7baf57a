package telegram

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	"leadwatch/internal/feed"
	logx "leadwatch/pkg/logx"
)

const groupID = int64(-100200)

func testSource(cfg Config) *Source {
	cfg = cfg.withDefaults()
	return &Source{
		cfg:     cfg,
		log:     logx.Nop(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		linked:  map[string]int64{"acme_support": groupID},
		posts:   map[string][]int{},
		threads: map[threadKey]postRef{},
		replies: map[postRef][]feed.Reply{},
	}
}

func forward(msgID, postID int) *tele.Message {
	return &tele.Message{
		ID:                msgID,
		Chat:              &tele.Chat{ID: groupID},
		OriginalChat:      &tele.Chat{Username: "acme_support"},
		OriginalMessageID: postID,
	}
}

func reply(msgID, threadID int, text string) *tele.Message {
	return &tele.Message{
		ID:       msgID,
		Chat:     &tele.Chat{ID: groupID},
		ThreadID: threadID,
		Sender:   &tele.User{FirstName: "Ada", Username: "ada"},
		Text:     text,
		Unixtime: time.Now().Unix(),
	}
}

func TestSourceForwardOpensThread(t *testing.T) {
	t.Parallel()

	s := testSource(Config{})
	s.handleMessage(forward(100, 42))
	s.handleMessage(reply(101, 100, "does this work with LDAP?"))

	ctx := context.Background()
	posts, err := s.RecentPosts(ctx, "acme_support", 10)
	if err != nil {
		t.Fatalf("recent posts: %v", err)
	}
	if len(posts) != 1 || posts[0] != 42 {
		t.Fatalf("posts = %v, want [42]", posts)
	}

	rs, err := s.Replies(ctx, "acme_support", 42, 10)
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("got %d replies, want 1", len(rs))
	}
	if rs[0].ID != 101 || rs[0].Username != "ada" || rs[0].Text != "does this work with LDAP?" {
		t.Fatalf("reply = %+v", rs[0])
	}
}

func TestSourceIgnoresUnknownThreads(t *testing.T) {
	t.Parallel()

	s := testSource(Config{})
	s.handleMessage(reply(101, 999, "stray message"))

	rs, err := s.Replies(context.Background(), "acme_support", 999, 10)
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	if len(rs) != 0 {
		t.Fatalf("got %d replies, want 0", len(rs))
	}
}

func TestSourceIgnoresForwardsFromUnlinkedGroups(t *testing.T) {
	t.Parallel()

	s := testSource(Config{})
	m := forward(100, 42)
	m.Chat = &tele.Chat{ID: groupID + 1}
	s.handleMessage(m)

	posts, _ := s.RecentPosts(context.Background(), "acme_support", 10)
	if len(posts) != 0 {
		t.Fatalf("posts = %v, want none", posts)
	}
}

func TestSourceEvictsOldPosts(t *testing.T) {
	t.Parallel()

	s := testSource(Config{BufferPosts: 2})
	s.handleMessage(forward(100, 1))
	s.handleMessage(reply(101, 100, "first"))
	s.handleMessage(forward(200, 2))
	s.handleMessage(forward(300, 3))

	ctx := context.Background()
	posts, _ := s.RecentPosts(ctx, "acme_support", 10)
	if len(posts) != 2 || posts[0] != 3 || posts[1] != 2 {
		t.Fatalf("posts = %v, want [3 2]", posts)
	}

	// Evicted post's thread and replies are gone too.
	if rs, _ := s.Replies(ctx, "acme_support", 1, 10); len(rs) != 0 {
		t.Fatalf("evicted post still has %d replies", len(rs))
	}
	s.handleMessage(reply(102, 100, "late"))
	if rs, _ := s.Replies(ctx, "acme_support", 1, 10); len(rs) != 0 {
		t.Fatal("evicted thread accepted a late reply")
	}
}

func TestSourceRepliesKeepNewestUnderLimit(t *testing.T) {
	t.Parallel()

	s := testSource(Config{BufferReplies: 3})
	s.handleMessage(forward(100, 42))
	for i := 0; i < 5; i++ {
		s.handleMessage(reply(101+i, 100, "msg"))
	}

	rs, _ := s.Replies(context.Background(), "acme_support", 42, 2)
	if len(rs) != 2 {
		t.Fatalf("got %d replies, want 2", len(rs))
	}
	if rs[0].ID != 104 || rs[1].ID != 105 {
		t.Fatalf("replies = %d,%d, want newest two (104,105)", rs[0].ID, rs[1].ID)
	}
}

func TestSourceRecentPostsHonorsLimit(t *testing.T) {
	t.Parallel()

	s := testSource(Config{})
	for i := 1; i <= 5; i++ {
		s.handleMessage(forward(100*i, i))
	}

	posts, _ := s.RecentPosts(context.Background(), "acme_support", 3)
	if len(posts) != 3 || posts[0] != 5 {
		t.Fatalf("posts = %v, want newest three", posts)
	}
}
