package events

import (
	"encoding/json"
	"time"

	"github.com/theirongolddev/sitebook/internal/model"
)

// Message types.
const (
	TypeMutation  = "mutation"
	TypeDashboard = "dashboard"
)

// MutationMessage announces the outcome of a phase, task or permit update.
type MutationMessage struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	EntityID int64     `json:"entity_id"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// NewMutationMessage builds the message for ev.
func NewMutationMessage(ev model.MutationEvent) *MutationMessage {
	at := ev.At.Time
	if at.IsZero() {
		at = time.Now()
	}
	return &MutationMessage{
		Type:     TypeMutation,
		ID:       ev.ID,
		Kind:     ev.Kind,
		EntityID: ev.EntityID,
		Outcome:  ev.Outcome,
		Error:    ev.Error,
		At:       at.UTC(),
	}
}

// ToJSON encodes the message.
func (m *MutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationMessageFromJSON decodes a mutation message.
func MutationMessageFromJSON(data []byte) (*MutationMessage, error) {
	var m MutationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DashboardMessage carries a compact dashboard summary after a poll that
// changed something.
type DashboardMessage struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}
