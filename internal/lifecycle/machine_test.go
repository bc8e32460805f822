package lifecycle

import (
	"testing"

	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideHelpConfirmed(t *testing.T) {
	conversation := conversationdomain.Conversation{State: conversationdomain.StateActive}

	decision, ok := Decide(conversation, TriggerHelpConfirmed)
	require.True(t, ok)
	assert.Equal(t, conversationdomain.StateAwaitingRating, decision.NextState)
	assert.True(t, decision.PromptRating)
	assert.True(t, decision.MarkResolved)
}

func TestDecideInactivity(t *testing.T) {
	conversation := conversationdomain.Conversation{State: conversationdomain.StateActive}

	decision, ok := Decide(conversation, TriggerInactivity)
	require.True(t, ok)
	assert.Equal(t, conversationdomain.StateIdle, decision.NextState)
	assert.False(t, decision.PromptRating)
	assert.False(t, decision.MarkResolved)
}

func TestDecideGuards(t *testing.T) {
	cases := []struct {
		name         string
		conversation conversationdomain.Conversation
		trigger      Trigger
	}{
		{
			name:         "awaiting rating is terminal for the sweep",
			conversation: conversationdomain.Conversation{State: conversationdomain.StateAwaitingRating},
			trigger:      TriggerHelpConfirmed,
		},
		{
			name:         "idle never transitions again",
			conversation: conversationdomain.Conversation{State: conversationdomain.StateIdle},
			trigger:      TriggerInactivity,
		},
		{
			name: "already collected satisfaction",
			conversation: conversationdomain.Conversation{
				State:                 conversationdomain.StateActive,
				SatisfactionCollected: true,
			},
			trigger: TriggerHelpConfirmed,
		},
		{
			name:         "unknown trigger",
			conversation: conversationdomain.Conversation{State: conversationdomain.StateActive},
			trigger:      Trigger("something_else"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Decide(tc.conversation, tc.trigger)
			assert.False(t, ok)
		})
	}
}
