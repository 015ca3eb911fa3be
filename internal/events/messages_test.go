package events

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/sitebook/internal/model"
)

func TestMutationMessage(t *testing.T) {
	at := time.Date(2024, 6, 2, 8, 30, 0, 0, time.FixedZone("IST", 19800))
	msg := NewMutationMessage(model.MutationEvent{
		ID:       "abc",
		Kind:     "update_task",
		EntityID: 12,
		Outcome:  model.OutcomeRolledBack,
		Error:    "api: forbidden",
		At:       model.NewDate(at),
	})

	if msg.Type != TypeMutation || msg.At.Location() != time.UTC || !msg.At.Equal(at) {
		t.Fatalf("message = %+v", msg)
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	for _, field := range []string{`"entity_id":12`, `"outcome":"rolled_back"`, `"error":"api: forbidden"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("payload missing %s: %s", field, data)
		}
	}

	back, err := MutationMessageFromJSON(data)
	if err != nil {
		t.Fatalf("MutationMessageFromJSON: %v", err)
	}
	if back.ID != "abc" || back.EntityID != 12 {
		t.Fatalf("decoded = %+v", back)
	}
}

func TestMutationMessageDefaultsTime(t *testing.T) {
	msg := NewMutationMessage(model.MutationEvent{ID: "x", Outcome: model.OutcomeCommitted})
	if msg.At.IsZero() {
		t.Fatal("At should default to now")
	}
	if strings.Contains(mustJSON(t, msg), `"error"`) {
		t.Fatal("empty error should be omitted")
	}
}

func mustJSON(t *testing.T, m *MutationMessage) string {
	t.Helper()
	b, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	return string(b)
}
