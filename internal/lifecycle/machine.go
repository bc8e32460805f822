package lifecycle

import (
	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
)

// Trigger identifies the sweep predicate that matched a conversation.
type Trigger string

const (
	// TriggerHelpConfirmed fires when help was offered recently and the
	// customer has not spoken since. Takes priority over inactivity.
	TriggerHelpConfirmed Trigger = "help_confirmed"
	// TriggerInactivity fires when the customer has been silent past the
	// inactivity threshold.
	TriggerInactivity Trigger = "inactivity"
)

// Decision is the outcome of a lifecycle transition.
type Decision struct {
	NextState    conversationdomain.State
	PromptRating bool
	MarkResolved bool
}

// Decide computes the next lifecycle state for a conversation given a
// sweep trigger. It returns false when the conversation's current state
// does not satisfy the trigger's guard, in which case the conversation
// must be left untouched. Decide never re-activates a conversation.
func Decide(conversation conversationdomain.Conversation, trigger Trigger) (Decision, bool) {
	if conversation.State != conversationdomain.StateActive {
		return Decision{}, false
	}
	if conversation.SatisfactionCollected {
		return Decision{}, false
	}

	switch trigger {
	case TriggerHelpConfirmed:
		return Decision{
			NextState:    conversationdomain.StateAwaitingRating,
			PromptRating: true,
			MarkResolved: true,
		}, true
	case TriggerInactivity:
		return Decision{
			NextState: conversationdomain.StateIdle,
		}, true
	default:
		return Decision{}, false
	}
}
