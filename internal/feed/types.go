package feed

import (
	"context"
	"time"
)

// RawComment is one harvested comment, immutable once constructed.
//
// CommentID is assigned by Telegram and increases monotonically within a
// discussion thread, which is what the watermark tracker relies on.
type RawComment struct {
	Channel   string    `json:"channel"`
	PostID    int       `json:"post_id"`
	CommentID int       `json:"comment_id"`
	Author    string    `json:"author"`
	Username  string    `json:"username,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}

// Reply is a single comment as returned by a Source, before it is tied
// to a channel/post by the poller.
type Reply struct {
	ID       int
	Author   string
	Username string
	Phone    string
	Text     string
	Date     time.Time
}

// Source is the external channel provider the poller reads from.
//
// Implementations own connection, auth, and pagination. All calls must
// honor ctx cancellation; the poller wraps them in per-call timeouts.
type Source interface {
	// HasThreads reports whether the channel has a linked discussion group
	// (i.e. whether posts can receive comments at all).
	HasThreads(ctx context.Context, channel string) (bool, error)

	// RecentPosts returns IDs of the most recent top-level posts, newest first.
	RecentPosts(ctx context.Context, channel string, limit int) ([]int, error)

	// Replies returns the comments attached to a post, in source order.
	Replies(ctx context.Context, channel string, postID int, limit int) ([]Reply, error)
}

// CapabilitySink receives the per-channel has-threads flag so channels with
// zero comments so far still show up in summary reports.
type CapabilitySink interface {
	NotifyCapability(channel string, hasThreads bool)
}
