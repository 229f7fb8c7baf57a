package intent

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label string
		want  Intent
	}{
		{"buying_intent", IntentBuying},
		{"HELP_REQUEST", IntentHelpRequest},
		{"  problem ", IntentProblem},
		{"spam", IntentSpam},
		{"neutral", IntentNeutral},
		{"purchase", IntentNeutral},
		{"", IntentNeutral},
	}
	for _, tt := range tests {
		if got := Parse(tt.label); got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}
}

func TestLeadSignal(t *testing.T) {
	t.Parallel()
	signals := map[Intent]bool{
		IntentBuying:      true,
		IntentHelpRequest: true,
		IntentProblem:     true,
		IntentQuestion:    false,
		IntentComplaint:   false,
		IntentFeedback:    false,
		IntentNeutral:     false,
		IntentSpam:        false,
	}
	for _, i := range All() {
		want, ok := signals[i]
		if !ok {
			t.Fatalf("All() returned intent %q missing from the expectation table", i)
		}
		if got := i.LeadSignal(); got != want {
			t.Errorf("%s.LeadSignal() = %v, want %v", i, got, want)
		}
	}
	if len(All()) != len(signals) {
		t.Fatalf("All() has %d intents, want %d", len(All()), len(signals))
	}
}
