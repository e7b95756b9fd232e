package models

import (
	"encoding/json"
	"testing"
)

func TestTurnSettledAndHasSuccess(t *testing.T) {
	turn := &Turn{Entries: []ModelEntry{
		{Loading: true},
		{Text: "answer"},
		{Error: "boom"},
	}}
	if turn.Settled() {
		t.Error("turn with a loading entry is not settled")
	}

	turn.Entries[0] = ModelEntry{Text: "done"}
	if !turn.Settled() {
		t.Error("turn with no loading entries is settled")
	}
	if !turn.HasSuccess() {
		t.Error("turn with a non-error text has a success")
	}

	all := &Turn{Entries: []ModelEntry{{Error: "a"}, {Error: "b"}}}
	if all.HasSuccess() {
		t.Error("turn with only errors has no success")
	}
}

func TestTurnInputEmpty(t *testing.T) {
	empty := &TurnInput{UserText: "  \n "}
	if !empty.Empty() {
		t.Error("whitespace-only text with no attachment is empty")
	}
	withFile := &TurnInput{Attachment: &Attachment{Name: "a.txt", Data: "aGk="}}
	if withFile.Empty() {
		t.Error("attachment-only input is not empty")
	}
}

func TestSessionWireFormat(t *testing.T) {
	sess := &Session{
		ID:    "s1",
		Title: "t",
		Turns: []*Turn{{
			ID:           "t1",
			Entries:      []ModelEntry{{Text: "x"}},
			JudgeLoading: true,
			Judge:        &JudgeResult{Winner: "Logic Master"},
		}},
	}

	data, err := json.Marshal(sess)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	json.Unmarshal(data, &raw)
	if _, ok := raw["messages"]; !ok {
		t.Error("turns must serialize under \"messages\"")
	}

	var turns []map[string]json.RawMessage
	json.Unmarshal(raw["messages"], &turns)
	for _, key := range []string{"models", "comparison", "comparison_loading"} {
		if _, ok := turns[0][key]; !ok {
			t.Errorf("turn missing wire field %q", key)
		}
	}
}

func TestFindTurn(t *testing.T) {
	sess := &Session{Turns: []*Turn{{ID: "a"}, {ID: "b"}}}
	if got := sess.FindTurn("b"); got == nil || got.ID != "b" {
		t.Errorf("FindTurn(b) = %+v", got)
	}
	if sess.FindTurn("missing") != nil {
		t.Error("FindTurn must return nil for unknown ids")
	}
}
