package sweep

import (
	"context"
	"time"

	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/lifecycle"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WorkConversation is the slice of a conversation row the sweep needs
// to decide and apply a transition.
type WorkConversation struct {
	ID                    snowflake.ID
	CompanyID             snowflake.ID
	State                 conversationdomain.State
	SatisfactionCollected bool
	LastUserActivityAt    time.Time
}

// snapshot rebuilds the conversation view the lifecycle rules decide on.
func (w WorkConversation) snapshot() conversationdomain.Conversation {
	return conversationdomain.Conversation{
		ID:                    w.ID,
		CompanyID:             w.CompanyID,
		State:                 w.State,
		SatisfactionCollected: w.SatisfactionCollected,
		LastUserActivityAt:    w.LastUserActivityAt,
	}
}

func (s *Sweeper) fetchHelpCandidates(ctx context.Context, windowStart, now time.Time, limit int) ([]WorkConversation, error) {
	var conversations []WorkConversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Raw(
			`SELECT c.id, c.company_id, c.state, c.satisfaction_collected, c.last_user_activity_at
			 FROM conversations c
			 WHERE c.state = ?
			   AND c.satisfaction_collected = FALSE
			   AND c.last_user_activity_at < ?
			   AND EXISTS (
				   SELECT 1 FROM messages m
				   WHERE m.conversation_id = c.id
					 AND m.role = ?
					 AND m.created_at >= ?
					 AND m.created_at < ?
			   )
			 ORDER BY c.id
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			conversationdomain.StateActive,
			windowStart,
			conversationdomain.RoleAssistant,
			windowStart,
			now,
			limit,
		).Scan(&conversations).Error
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (s *Sweeper) fetchInactiveCandidates(ctx context.Context, inactiveCutoff time.Time, limit int) ([]WorkConversation, error) {
	var conversations []WorkConversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Raw(
			`SELECT c.id, c.company_id, c.state, c.satisfaction_collected, c.last_user_activity_at
			 FROM conversations c
			 WHERE c.state = ?
			   AND c.satisfaction_collected = FALSE
			   AND c.last_user_activity_at < ?
			 ORDER BY c.id
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			conversationdomain.StateActive,
			inactiveCutoff,
			limit,
		).Scan(&conversations).Error
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (s *Sweeper) fetchAssistantBodies(ctx context.Context, conversationID snowflake.ID, windowStart, now time.Time) ([]string, error) {
	var bodies []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT body
		 FROM messages
		 WHERE conversation_id = ?
		   AND role = ?
		   AND created_at >= ?
		   AND created_at < ?
		 ORDER BY created_at ASC`,
		conversationID,
		conversationdomain.RoleAssistant,
		windowStart,
		now,
	).Scan(&bodies).Error
	if err != nil {
		return nil, err
	}
	return bodies, nil
}

// applyTransition executes a lifecycle decision as one guarded update,
// appending the rating prompt in the same transaction when the decision
// asks for it. The WHERE clause re-checks the transition preconditions
// at write time, including the activity cutoff: a conversation
// reactivated by a customer message after selection is left untouched,
// and repeated sweeps over the same conversation are a no-op.
func (s *Sweeper) applyTransition(ctx context.Context, conversationID snowflake.ID, decision lifecycle.Decision, activityCutoff, now time.Time) (bool, error) {
	updated := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE conversations
			 SET state = ?,
			     resolved = CASE WHEN ? THEN TRUE ELSE resolved END,
			     satisfaction_collected = CASE WHEN ? THEN TRUE ELSE satisfaction_collected END,
			     updated_at = ?
			 WHERE id = ?
			   AND state = ?
			   AND satisfaction_collected = FALSE
			   AND last_user_activity_at < ?`,
			decision.NextState,
			decision.MarkResolved,
			decision.PromptRating,
			now,
			conversationID,
			conversationdomain.StateActive,
			activityCutoff,
		)
		if result.Error != nil {
			return result.Error
		}
		updated = result.RowsAffected > 0
		if !updated || !decision.PromptRating {
			return nil
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO messages (id, conversation_id, role, body, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			conversationID,
			conversationdomain.RoleAssistant,
			s.cfg.RatingPrompt,
			now,
		).Error
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}
