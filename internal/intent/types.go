package intent

import (
	"time"

	"leadwatch/internal/feed"
)

// Classification is the classifier's verdict for one comment.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	IsLead     bool    `json:"is_lead"`
	LeadScore  float64 `json:"lead_score"`
	// NeedSummary is a one-line description of what the person needs.
	// Empty unless IsLead.
	NeedSummary string `json:"need_summary"`
}

// AnalyzedComment is a RawComment plus its Classification; the unit that
// flows through the distribution hub. Immutable once constructed, produced
// exactly once per raw comment (classified or fallback).
type AnalyzedComment struct {
	feed.RawComment
	Classification
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Fallback wraps a comment in the neutral zero classification used when the
// classifier hard-fails. Downstream accounting still sees exactly one item.
func Fallback(c feed.RawComment, at time.Time) AnalyzedComment {
	return AnalyzedComment{
		RawComment: c,
		Classification: Classification{
			Intent: IntentNeutral,
		},
		AnalyzedAt: at,
	}
}
