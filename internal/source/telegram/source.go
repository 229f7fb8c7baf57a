// Package telegram reads channel comments through the Bot API.
//
// The Bot API cannot page through a discussion group's history, so the
// source works from the live update stream instead: the bot is a member of
// each channel's linked discussion group, auto-forwarded channel posts map
// group threads back to channel post IDs, and replies inside those threads
// are buffered per thread. RecentPosts and Replies serve from the buffers.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	"leadwatch/internal/feed"
	logx "leadwatch/pkg/logx"
)

type Config struct {
	Token string

	// RatePerSec paces outgoing Bot API calls. Default 10.
	RatePerSec int

	// PollTimeout is the long-poll timeout. Default 10s.
	PollTimeout time.Duration

	// BufferPosts bounds the per-channel post list. Default 200.
	BufferPosts int

	// BufferReplies bounds the per-thread reply buffer. Default 50.
	BufferReplies int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.BufferPosts <= 0 {
		c.BufferPosts = 200
	}
	if c.BufferReplies <= 0 {
		c.BufferReplies = 50
	}
	return c
}

type threadKey struct {
	chatID   int64
	threadID int
}

type postRef struct {
	channel string
	postID  int
}

// Source implements feed.Source over a telebot bot.
type Source struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	mu      sync.Mutex
	linked  map[string]int64         // channel username -> linked discussion chat ID (0 = none)
	posts   map[string][]int         // channel username -> post IDs, newest first
	threads map[threadKey]postRef    // discussion thread -> originating channel post
	replies map[postRef][]feed.Reply // buffered comments, oldest first
}

func New(cfg Config, log logx.Logger) (*Source, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}

	s := &Source{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		linked:  map[string]int64{},
		posts:   map[string][]int{},
		threads: map[threadKey]postRef{},
		replies: map[postRef][]feed.Reply{},
	}
	b.Handle(tele.OnText, func(c tele.Context) error {
		s.handleMessage(c.Message())
		return nil
	})
	return s, nil
}

// Run drives the bot's update loop until ctx is canceled.
func (s *Source) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()
	s.log.Info("telegram polling started")
	s.bot.Start()
	s.log.Info("telegram polling stopped")
}

// HasThreads resolves the channel's linked discussion group via getChat.
// The mapping is retained so incoming group messages can be routed back to
// the channel.
func (s *Source) HasThreads(ctx context.Context, channel string) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}

	data, err := s.bot.Raw("getChat", map[string]string{"chat_id": "@" + channel})
	if err != nil {
		return false, err
	}
	var resp struct {
		Result struct {
			LinkedChatID int64 `json:"linked_chat_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.linked[channel] = resp.Result.LinkedChatID
	s.mu.Unlock()
	return resp.Result.LinkedChatID != 0, nil
}

// RecentPosts returns buffered post IDs, newest first.
func (s *Source) RecentPosts(ctx context.Context, channel string, limit int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.posts[channel]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]int(nil), ids...), nil
}

// Replies returns the buffered comments for a post, oldest first. With a
// limit it keeps the newest entries, since older ones are what the buffer
// evicts anyway.
func (s *Source) Replies(ctx context.Context, channel string, postID int, limit int) ([]feed.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.replies[postRef{channel: channel, postID: postID}]
	if limit > 0 && len(rs) > limit {
		rs = rs[len(rs)-limit:]
	}
	return append([]feed.Reply(nil), rs...), nil
}

// handleMessage routes one incoming group message: auto-forwarded channel
// posts open a thread, replies inside a known thread become comments.
func (s *Source) handleMessage(m *tele.Message) {
	if m == nil || m.Chat == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Auto-forward of a channel post into its linked discussion group.
	if m.OriginalChat != nil && m.OriginalChat.Username != "" {
		channel := m.OriginalChat.Username
		if s.linked[channel] != m.Chat.ID {
			return
		}
		ref := postRef{channel: channel, postID: m.OriginalMessageID}
		s.threads[threadKey{chatID: m.Chat.ID, threadID: m.ID}] = ref

		ids := append([]int{ref.postID}, s.posts[channel]...)
		if len(ids) > s.cfg.BufferPosts {
			for _, old := range ids[s.cfg.BufferPosts:] {
				s.evictPostLocked(postRef{channel: channel, postID: old})
			}
			ids = ids[:s.cfg.BufferPosts]
		}
		s.posts[channel] = ids
		return
	}

	// Comment inside a known thread.
	if m.ThreadID == 0 {
		return
	}
	ref, ok := s.threads[threadKey{chatID: m.Chat.ID, threadID: m.ThreadID}]
	if !ok {
		return
	}

	r := feed.Reply{
		ID:   m.ID,
		Text: m.Text,
		Date: m.Time(),
	}
	if m.Sender != nil {
		r.Author = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
		r.Username = m.Sender.Username
	}
	if m.Contact != nil {
		r.Phone = m.Contact.PhoneNumber
	}

	rs := append(s.replies[ref], r)
	if len(rs) > s.cfg.BufferReplies {
		rs = rs[len(rs)-s.cfg.BufferReplies:]
	}
	s.replies[ref] = rs
}

func (s *Source) evictPostLocked(ref postRef) {
	delete(s.replies, ref)
	for k, v := range s.threads {
		if v == ref {
			delete(s.threads, k)
		}
	}
}
