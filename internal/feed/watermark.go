package feed

// ThreadKey identifies one discussion thread: a post within a channel.
type ThreadKey struct {
	Channel string
	PostID  int
}

// Tracker remembers the highest comment ID already forwarded per thread.
//
// It is deliberately NOT safe for concurrent use: the poller goroutine owns
// it exclusively. Watermarks only ever move forward.
type Tracker struct {
	seen map[ThreadKey]int
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[ThreadKey]int)}
}

// ShouldEmit reports whether seq is past the thread's watermark.
func (t *Tracker) ShouldEmit(key ThreadKey, seq int) bool {
	return seq > t.seen[key]
}

// Advance raises the thread's watermark to maxSeq. Called once per thread
// after a whole pass over its replies, so a re-ordered batch within one pass
// cannot lower the mark.
func (t *Tracker) Advance(key ThreadKey, maxSeq int) {
	if maxSeq > t.seen[key] {
		t.seen[key] = maxSeq
	}
}

// Watermark returns the current mark for a thread (0 if never seen).
func (t *Tracker) Watermark(key ThreadKey) int {
	return t.seen[key]
}
