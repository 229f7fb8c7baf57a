// Package intent defines the closed classification taxonomy and the
// classified-comment type that flows through the distribution hub.
package intent

import "strings"

// Intent is the primary intent category of a comment.
//
// The set is closed: every classifier output maps into one of these,
// with unrecognized labels collapsing to IntentNeutral.
type Intent string

const (
	// IntentProblem: person describes a problem they're facing.
	IntentProblem Intent = "problem"
	// IntentQuestion: person asks a question, seeks information.
	IntentQuestion Intent = "question"
	// IntentHelpRequest: person explicitly requests help or assistance.
	IntentHelpRequest Intent = "help_request"
	// IntentComplaint: person complains about a product/service/situation.
	IntentComplaint Intent = "complaint"
	// IntentFeedback: person gives feedback or a suggestion.
	IntentFeedback Intent = "feedback"
	// IntentNeutral: no actionable intent.
	IntentNeutral Intent = "neutral"
	// IntentBuying: person shows clear buying intent.
	IntentBuying Intent = "buying_intent"
	// IntentSpam: spam or irrelevant content.
	IntentSpam Intent = "spam"
)

// All lists every intent, lead-signal categories first. Stable order for
// reports and stats output.
func All() []Intent {
	return []Intent{
		IntentBuying,
		IntentHelpRequest,
		IntentProblem,
		IntentQuestion,
		IntentComplaint,
		IntentFeedback,
		IntentNeutral,
		IntentSpam,
	}
}

// Parse maps a classifier label into the closed taxonomy.
// Unknown labels become IntentNeutral.
func Parse(label string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(label))) {
	case IntentProblem:
		return IntentProblem
	case IntentQuestion:
		return IntentQuestion
	case IntentHelpRequest:
		return IntentHelpRequest
	case IntentComplaint:
		return IntentComplaint
	case IntentFeedback:
		return IntentFeedback
	case IntentBuying:
		return IntentBuying
	case IntentSpam:
		return IntentSpam
	default:
		return IntentNeutral
	}
}

// LeadSignal reports whether this intent by itself suggests a potential lead.
func (i Intent) LeadSignal() bool {
	switch i {
	case IntentBuying, IntentHelpRequest, IntentProblem:
		return true
	default:
		return false
	}
}

func (i Intent) String() string { return string(i) }
