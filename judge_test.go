package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
)

// judgeHarness runs a turn to completion and then lets each test script
// the judge and consensus calls by purpose.
type judgeHarness struct {
	store *memStore
	coord *Coordinator

	mu        sync.Mutex
	judgeBody string
	judgeErr  error
	consBody  string
	consErr   error
	judgeGate chan struct{}
	calls     map[string]int
}

func newJudgeHarness(t *testing.T) (*judgeHarness, string, string) {
	t.Helper()
	h := &judgeHarness{
		store: newMemStore(),
		calls: map[string]int{},
	}
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		h.mu.Lock()
		h.calls[reqCtx.Purpose]++
		body, err := h.judgeBody, h.judgeErr
		gate := h.judgeGate
		if reqCtx.Purpose == "consensus" {
			body, err = h.consBody, h.consErr
		}
		h.mu.Unlock()

		if reqCtx.Purpose == "persona" {
			return &LLMResponse{Content: "answer from " + reqCtx.Persona}, nil
		}
		if reqCtx.Purpose == "judge" && gate != nil {
			<-gate
		}
		if err != nil {
			return nil, err
		}
		return &LLMResponse{Content: body}, nil
	}
	h.coord = NewCoordinator(h.store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, err := h.coord.SubmitTurn("", models.TurnInput{UserText: "write a function to reverse a string"})
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	h.coord.Wait()
	return h, sid, tid
}

func (h *judgeHarness) purposeCalls(purpose string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[purpose]
}

const validJudgeJSON = `{"winner":"Logic Master","reasoning":"most rigorous and correct","scores":[{"model":"Logic Master","performance":9},{"model":"Code Ninja","performance":8},{"model":"Code Mentor","performance":7}]}`

func TestJudgeStoresResultVerbatim(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)
	h.judgeBody = validJudgeJSON

	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("RequestJudgement failed: %v", err)
	}
	h.coord.Wait()

	sess, _ := h.store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.JudgeLoading {
		t.Error("judge loading flag should clear after settle")
	}
	if turn.Judge == nil {
		t.Fatal("judge result not stored")
	}
	if turn.Judge.Winner != "Logic Master" {
		t.Errorf("winner = %q, want Logic Master", turn.Judge.Winner)
	}
	if turn.Judge.Reasoning != "most rigorous and correct" {
		t.Errorf("reasoning = %q", turn.Judge.Reasoning)
	}
	if len(turn.Judge.Scores) != 3 || turn.Judge.Scores[0].Performance != 9 {
		t.Errorf("scores stored incorrectly: %+v", turn.Judge.Scores)
	}
}

func TestJudgeSingleFlight(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)
	h.judgeBody = validJudgeJSON
	h.judgeGate = make(chan struct{})

	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("first RequestJudgement failed: %v", err)
	}
	if err := h.coord.RequestJudgement(sid, tid); !errors.Is(err, ErrJudgeInFlight) {
		t.Errorf("expected ErrJudgeInFlight for concurrent request, got %v", err)
	}

	close(h.judgeGate)
	h.coord.Wait()

	if got := h.purposeCalls("judge"); got != 1 {
		t.Errorf("expected exactly 1 judge call, got %d", got)
	}
}

func TestJudgeRejectedWhileEntriesLoading(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	judgeCalls := 0
	call := func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
		if reqCtx.Purpose == "judge" {
			judgeCalls++
		}
		<-block
		return &LLMResponse{Content: "done"}, nil
	}
	c := NewCoordinator(store, testPersonas(), "judge-model", "consensus-model", call)

	sid, tid, _ := c.SubmitTurn("", models.TurnInput{UserText: "reverse a string"})

	if err := c.RequestJudgement(sid, tid); !errors.Is(err, ErrJudgeNotReady) {
		t.Errorf("expected ErrJudgeNotReady, got %v", err)
	}
	if judgeCalls != 0 {
		t.Error("no judge call may be issued while entries are in flight")
	}

	close(block)
	c.Wait()
}

func TestJudgeMalformedPayloadIsRetriable(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)
	h.judgeBody = "I think Logic Master wins because it was the most thorough."

	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("RequestJudgement failed: %v", err)
	}
	h.coord.Wait()

	sess, _ := h.store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.Judge != nil {
		t.Error("judge result must stay unset on malformed payload")
	}
	if turn.JudgeError != "comparison failed" {
		t.Errorf("judge error = %q, want %q", turn.JudgeError, "comparison failed")
	}
	if turn.JudgeLoading {
		t.Error("judge loading flag should clear after failure")
	}

	// A later invocation with a well-formed payload succeeds
	h.mu.Lock()
	h.judgeBody = validJudgeJSON
	h.mu.Unlock()
	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("second RequestJudgement failed: %v", err)
	}
	h.coord.Wait()

	sess, _ = h.store.GetSession(sid)
	turn = sess.FindTurn(tid)
	if turn.Judge == nil || turn.Judge.Winner != "Logic Master" {
		t.Errorf("second judge call should succeed, got %+v", turn.Judge)
	}
	if turn.JudgeError != "" {
		t.Errorf("judge error should clear on success, got %q", turn.JudgeError)
	}
}

func TestJudgeToleratesCodeFence(t *testing.T) {
	result, err := parseJudgeResult("```json\n" + validJudgeJSON + "\n```")
	if err != nil {
		t.Fatalf("fenced JSON should parse: %v", err)
	}
	if result.Winner != "Logic Master" {
		t.Errorf("winner = %q", result.Winner)
	}

	if _, err := parseJudgeResult("not json at all"); err == nil {
		t.Error("plain prose must not parse as a judge result")
	}
}

func TestConsensusRequiresJudgeResult(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)

	if err := h.coord.RequestConsensus(sid, tid); !errors.Is(err, ErrNoJudgement) {
		t.Errorf("expected ErrNoJudgement, got %v", err)
	}
	if got := h.purposeCalls("consensus"); got != 0 {
		t.Errorf("no consensus call may be issued without a judge result, got %d", got)
	}
}

func TestConsensusStoresSynthesizedAnswer(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)
	h.judgeBody = validJudgeJSON
	h.consBody = "the synthesized best answer"

	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("RequestJudgement failed: %v", err)
	}
	h.coord.Wait()
	if err := h.coord.RequestConsensus(sid, tid); err != nil {
		t.Fatalf("RequestConsensus failed: %v", err)
	}
	h.coord.Wait()

	sess, _ := h.store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.Consensus == nil {
		t.Fatal("consensus result not stored")
	}
	if turn.Consensus.Loading || turn.Consensus.Error != "" {
		t.Errorf("consensus should settle cleanly: %+v", turn.Consensus)
	}
	if turn.Consensus.Text != "the synthesized best answer" {
		t.Errorf("consensus text = %q", turn.Consensus.Text)
	}
}

func TestConsensusFailureSettlesWithError(t *testing.T) {
	h, sid, tid := newJudgeHarness(t)
	h.judgeBody = validJudgeJSON
	h.consErr = errors.New("upstream timeout")

	if err := h.coord.RequestJudgement(sid, tid); err != nil {
		t.Fatalf("RequestJudgement failed: %v", err)
	}
	h.coord.Wait()
	if err := h.coord.RequestConsensus(sid, tid); err != nil {
		t.Fatalf("RequestConsensus failed: %v", err)
	}
	h.coord.Wait()

	sess, _ := h.store.GetSession(sid)
	turn := sess.FindTurn(tid)
	if turn.Consensus == nil || turn.Consensus.Loading {
		t.Fatalf("consensus should settle: %+v", turn.Consensus)
	}
	if turn.Consensus.Text != "" || turn.Consensus.Error == "" {
		t.Errorf("failed consensus should have empty text and an error: %+v", turn.Consensus)
	}
}
