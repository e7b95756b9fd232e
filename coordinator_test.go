package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
)

// memStore is an in-memory SessionStore that serializes through JSON the
// same way the real record store does, and counts puts per session id.
type memStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	puts     map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string][]byte),
		puts:     make(map[string]int),
	}
}

func (s *memStore) GetSession(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *memStore) PutSession(sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = data
	s.puts[sess.ID]++
	return nil
}

func (s *memStore) putCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[id]
}

func testPersonas() *models.PersonaRegistry {
	return models.NewPersonaRegistry([]*models.Persona{
		{ID: "logic-master", Name: "Logic Master", Instruction: "reason deeply", ModelID: "model-a", Temperature: 0.7, MaxTokens: 4000},
		{ID: "code-ninja", Name: "Code Ninja", Instruction: "clean code only", ModelID: "model-b", Temperature: 0.4, MaxTokens: 4000},
		{ID: "code-mentor", Name: "Code Mentor", Instruction: "teach patiently", ModelID: "model-c", Temperature: 0.8, MaxTokens: 4000},
	})
}

func TestSubmitTurnInitializesAllEntries(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		<-block
		return &LLMResponse{Content: "done"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, err := c.SubmitTurn("", models.TurnInput{UserText: "write a function to reverse a string"})
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	sess, err := store.GetSession(sid)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	turn := sess.FindTurn(tid)
	if turn == nil {
		t.Fatal("turn not found in persisted session")
	}
	if len(turn.Entries) != 3 {
		t.Fatalf("expected 3 entries immediately after submit, got %d", len(turn.Entries))
	}
	for i, e := range turn.Entries {
		if !e.Loading || e.Text != "" || e.Error != "" {
			t.Errorf("entry %d not initialized to loading/empty/no-error: %+v", i, e)
		}
	}
	if got := store.putCount(sid); got != 1 {
		t.Errorf("expected exactly 1 persist after submit, got %d", got)
	}

	close(block)
	c.Wait()
}

func TestSubmitTurnEmptyInputIsNoop(t *testing.T) {
	store := newMemStore()
	called := false
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		called = true
		return &LLMResponse{Content: "x"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	_, _, err := c.SubmitTurn("", models.TurnInput{UserText: "   "})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	c.Wait()
	if called {
		t.Error("no model call should be issued for empty input")
	}
	if len(store.sessions) != 0 {
		t.Error("no session should be created for empty input")
	}
}

func TestSubmitTurnAttachmentOnlyAllowed(t *testing.T) {
	store := newMemStore()
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		return &LLMResponse{Content: "looked at the file"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	_, _, err := c.SubmitTurn("", models.TurnInput{
		Attachment: &models.Attachment{Name: "main.go", MIMEType: "text/x-go", Data: "cGFja2FnZSBtYWlu"},
	})
	if err != nil {
		t.Fatalf("attachment-only input should be accepted: %v", err)
	}
	c.Wait()
}

func TestAllPersonasSettleInAnyOrder(t *testing.T) {
	store := newMemStore()
	release := map[string]chan struct{}{
		"Logic Master": make(chan struct{}),
		"Code Ninja":   make(chan struct{}),
		"Code Mentor":  make(chan struct{}),
	}
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		<-release[reqCtx.Persona]
		return &LLMResponse{Content: "answer from " + reqCtx.Persona}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, err := c.SubmitTurn("", models.TurnInput{UserText: "write a function to reverse a string"})
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	// Completion order deliberately differs from persona order
	close(release["Code Mentor"])
	close(release["Logic Master"])
	close(release["Code Ninja"])
	c.Wait()

	sess, _ := store.GetSession(sid)
	turn := sess.FindTurn(tid)
	want := []string{"answer from Logic Master", "answer from Code Ninja", "answer from Code Mentor"}
	for i, e := range turn.Entries {
		if e.Loading {
			t.Errorf("entry %d still loading after all calls settled", i)
		}
		if e.Error != "" {
			t.Errorf("entry %d has unexpected error %q", i, e.Error)
		}
		if e.Text != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Text, want[i])
		}
	}

	// 1 create + 3 completions
	if got := store.putCount(sid); got != 4 {
		t.Errorf("expected session persisted exactly 4 times, got %d", got)
	}
}

func TestPersonaFailureIsIsolated(t *testing.T) {
	store := newMemStore()
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		if reqCtx.Persona == "Code Ninja" {
			return nil, errors.New("connection reset by peer")
		}
		return &LLMResponse{Content: "answer from " + reqCtx.Persona}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, err := c.SubmitTurn("", models.TurnInput{UserText: "write a function to reverse a string"})
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	c.Wait()

	sess, _ := store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.Entries[0].Error != "" || turn.Entries[0].Text == "" {
		t.Errorf("entry 0 should settle normally: %+v", turn.Entries[0])
	}
	if turn.Entries[2].Error != "" || turn.Entries[2].Text == "" {
		t.Errorf("entry 2 should settle normally: %+v", turn.Entries[2])
	}
	if turn.Entries[1].Text != "" || turn.Entries[1].Error == "" {
		t.Errorf("entry 1 should settle with empty text and an error: %+v", turn.Entries[1])
	}
}

func TestRetryRerunsOnlyFailedPersona(t *testing.T) {
	store := newMemStore()
	var mu sync.Mutex
	failNinja := true
	calls := []string{}
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		mu.Lock()
		calls = append(calls, reqCtx.Persona)
		fail := failNinja && reqCtx.Persona == "Code Ninja"
		mu.Unlock()
		if fail {
			return nil, errors.New("upstream 502")
		}
		return &LLMResponse{Content: "answer from " + reqCtx.Persona}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, _ := c.SubmitTurn("", models.TurnInput{UserText: "reverse a string", ToolPreset: "debug"})
	c.Wait()

	mu.Lock()
	failNinja = false
	initialCalls := len(calls)
	mu.Unlock()

	if err := c.RetryPersona(sid, tid, 1); err != nil {
		t.Fatalf("RetryPersona failed: %v", err)
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != initialCalls+1 {
		t.Fatalf("retry should issue exactly one extra call, got %d extra", len(calls)-initialCalls)
	}
	if calls[len(calls)-1] != "Code Ninja" {
		t.Errorf("retry called %s, want Code Ninja", calls[len(calls)-1])
	}

	sess, _ := store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.Entries[1].Error != "" || turn.Entries[1].Text != "answer from Code Ninja" {
		t.Errorf("retried entry did not settle to success: %+v", turn.Entries[1])
	}
}

func TestRetryRejectedWhileInFlight(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		<-block
		return &LLMResponse{Content: "done"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, _ := c.SubmitTurn("", models.TurnInput{UserText: "reverse a string"})

	if err := c.RetryPersona(sid, tid, 0); !errors.Is(err, ErrEntryInFlight) {
		t.Errorf("expected ErrEntryInFlight, got %v", err)
	}

	close(block)
	c.Wait()
}

func TestRetryTurnFromSmallerPersonaSet(t *testing.T) {
	store := newMemStore()
	called := false
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		called = true
		return &LLMResponse{Content: "x"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	// A session saved when only two personas were configured carries
	// two-entry turns.
	sess := &models.Session{
		ID:    "old-session",
		Title: "old",
		Turns: []*models.Turn{{
			ID:    "old-turn",
			Input: models.TurnInput{UserText: "reverse a string"},
			Entries: []models.ModelEntry{
				{Text: "a"},
				{Text: "b"},
			},
		}},
	}
	if err := store.PutSession(sess); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	if err := c.RetryPersona("old-session", "old-turn", 2); err == nil {
		t.Fatal("retry beyond the turn's entry count must fail")
	}
	c.Wait()
	if called {
		t.Error("no model call should be issued for an out-of-range entry")
	}
}

func TestSecondTurnSeesPersonaOwnHistory(t *testing.T) {
	store := newMemStore()
	var mu sync.Mutex
	histories := map[string][]providers.Message{}
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		mu.Lock()
		histories[reqCtx.Persona] = req.Messages
		mu.Unlock()
		return &LLMResponse{Content: "answer from " + reqCtx.Persona}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, _, _ := c.SubmitTurn("", models.TurnInput{UserText: "first question"})
	c.Wait()
	_, _, err := c.SubmitTurn(sid, models.TurnInput{UserText: "second question"})
	if err != nil {
		t.Fatalf("second SubmitTurn failed: %v", err)
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	msgs := histories["Logic Master"]
	// system + prior user + prior assistant + current user
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages on second turn, got %d", len(msgs))
	}
	if msgs[2].Role != "assistant" || msgs[2].Content != "answer from Logic Master" {
		t.Errorf("persona should only see its own prior answer, got %+v", msgs[2])
	}
}
