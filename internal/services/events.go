package services

import (
	"context"
	"time"

	"github.com/campuspool/backend/pkg/logger"
)

type EventType string

const (
	EventSystemMessage     EventType = "system_message"
	EventMembershipChanged EventType = "membership_changed"
)

// PartyEvent is the boundary payload handed to external collaborators (chat
// feed, push notifications, live party list). It carries no authority: losing
// one must never corrupt party or request state.
type PartyEvent struct {
	Type    EventType `json:"type"`
	PartyID string    `json:"party_id"`
	UserID  string    `json:"user_id,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Consumer is an external collaborator subscribed to party events.
type Consumer interface {
	Name() string
	Deliver(ctx context.Context, ev PartyEvent) error
}

const (
	emitMaxAttempts = 3
	emitBackoff     = 200 * time.Millisecond
)

// Emitter fans events out to its consumers with at-least-once intent: each
// consumer gets a few attempts, then the failure is logged and dropped. The
// emitter never reports errors back into the coordination path.
type Emitter struct {
	consumers []Consumer
}

func NewEmitter(consumers ...Consumer) *Emitter {
	return &Emitter{consumers: consumers}
}

// Register adds a consumer. Not safe to call after the emitter is in use.
func (e *Emitter) Register(c Consumer) {
	e.consumers = append(e.consumers, c)
}

// EmitSystemEvent posts a system notice into the party's feed.
func (e *Emitter) EmitSystemEvent(ctx context.Context, partyID, message string) {
	e.emit(ctx, PartyEvent{
		Type:    EventSystemMessage,
		PartyID: partyID,
		Message: message,
		At:      time.Now(),
	})
}

// EmitMembershipChanged signals that the party's member set or lifecycle
// state changed; the notification subsystem decides what to push.
func (e *Emitter) EmitMembershipChanged(ctx context.Context, partyID string) {
	e.emit(ctx, PartyEvent{
		Type:    EventMembershipChanged,
		PartyID: partyID,
		At:      time.Now(),
	})
}

func (e *Emitter) emit(ctx context.Context, ev PartyEvent) {
	for _, c := range e.consumers {
		var err error
		for attempt := 1; ; attempt++ {
			if err = c.Deliver(ctx, ev); err == nil {
				break
			}
			if attempt == emitMaxAttempts {
				break
			}
			select {
			case <-ctx.Done():
				logger.Warn().
					Str("consumer", c.Name()).
					Str("party_id", ev.PartyID).
					Msg("event delivery cancelled")
				return
			case <-time.After(emitBackoff * time.Duration(attempt)):
			}
		}
		if err != nil {
			logger.Error().
				Err(err).
				Str("consumer", c.Name()).
				Str("type", string(ev.Type)).
				Str("party_id", ev.PartyID).
				Msg("event dropped after retries")
		}
	}
}
