// Package dashboard maintains the live aggregation view over classified
// comments: running counters, the lead list, and a bounded recent feed.
package dashboard

import (
	"context"
	"sort"
	"sync"

	"leadwatch/internal/hub"
	"leadwatch/internal/intent"
	"leadwatch/pkg/logx"
)

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Total    uint64                   `json:"total"`
	Leads    uint64                   `json:"leads"`
	ByIntent map[intent.Intent]uint64 `json:"by_intent"`
}

// State aggregates classified comments. All accessors return copies, so
// readers never observe a view mid-update.
type State struct {
	mu        sync.RWMutex
	total     uint64
	leadCount uint64
	byIntent  map[intent.Intent]uint64
	leads     []intent.AnalyzedComment // sorted by lead score, highest first
	recent    []intent.AnalyzedComment // oldest first, bounded
	recentCap int

	log logx.Logger
}

func NewState(recentCap int, log logx.Logger) *State {
	if recentCap <= 0 {
		recentCap = 100
	}
	return &State{
		byIntent:  map[intent.Intent]uint64{},
		recentCap: recentCap,
		log:       log,
	}
}

// Run consumes the subscription until the hub closes or ctx is canceled.
// Falling behind the publisher only costs skipped items, never an error.
func (s *State) Run(ctx context.Context, sub *hub.Subscriber) {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case hub.KindItem:
			s.Observe(msg.Item)
		case hub.KindLagged:
			s.log.Warn("dashboard fell behind broadcast",
				logx.Uint64("skipped", msg.Skipped))
		case hub.KindClosed:
			return
		}
	}
}

// Observe folds one classified comment into the view.
func (s *State) Observe(a intent.AnalyzedComment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byIntent[a.Intent]++

	if a.IsLead {
		s.leadCount++
		// Insert keeping descending score order; ties keep arrival order.
		i := sort.Search(len(s.leads), func(i int) bool {
			return s.leads[i].LeadScore < a.LeadScore
		})
		s.leads = append(s.leads, intent.AnalyzedComment{})
		copy(s.leads[i+1:], s.leads[i:])
		s.leads[i] = a
	}

	if len(s.recent) == s.recentCap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = a
	} else {
		s.recent = append(s.recent, a)
	}
}

// Stats returns the counter snapshot.
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	by := make(map[intent.Intent]uint64, len(s.byIntent))
	for k, v := range s.byIntent {
		by[k] = v
	}
	return Stats{Total: s.total, Leads: s.leadCount, ByIntent: by}
}

// Leads returns all observed leads, best score first.
func (s *State) Leads() []intent.AnalyzedComment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]intent.AnalyzedComment(nil), s.leads...)
}

// Recent returns the retained tail of the stream, oldest first.
func (s *State) Recent() []intent.AnalyzedComment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]intent.AnalyzedComment(nil), s.recent...)
}
