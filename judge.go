package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
)

const judgeErrMessage = "comparison failed"

// RequestJudgement asks the judge model to rank a settled turn's persona
// answers. Enabled only when no persona entry is still loading, at least
// one entry succeeded, and no judge call is already outstanding for the
// turn. A fresh call overwrites any previous judge result.
func (c *Coordinator) RequestJudgement(sessionID, turnID string) error {
	c.mu.Lock()
	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	turn := sess.FindTurn(turnID)
	if turn == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	if !turn.Settled() {
		c.mu.Unlock()
		return ErrJudgeNotReady
	}
	if !turn.HasSuccess() {
		c.mu.Unlock()
		return ErrJudgeNoSuccess
	}
	if turn.JudgeLoading {
		c.mu.Unlock()
		return ErrJudgeInFlight
	}

	turn.JudgeLoading = true
	turn.JudgeError = ""
	sess.Timestamp = time.Now().UnixMilli()
	input := turn.Input
	entries := make([]models.ModelEntry, len(turn.Entries))
	copy(entries, turn.Entries)
	if err := c.store.PutSession(sess); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to persist session: %w", err)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runJudge(sessionID, turnID, input, entries)
	return nil
}

func (c *Coordinator) runJudge(sessionID, turnID string, input models.TurnInput, entries []models.ModelEntry) {
	defer c.wg.Done()

	req := &providers.UnifiedRequest{
		Model:          c.judgeModel,
		Messages:       c.buildJudgeMessages(input, entries),
		Temperature:    0.3,
		MaxTokens:      2000,
		ResponseFormat: &providers.ResponseFormat{Type: "json_object"},
	}
	reqCtx := &routing.RequestContext{
		RequestID: uuid.New().String(),
		ModelID:   c.judgeModel,
		SessionID: sessionID,
		TurnID:    turnID,
		Purpose:   "judge",
	}

	resp, err := c.call(context.Background(), req, reqCtx)
	if err != nil {
		log.Printf("[Judge] Call failed on turn %s: %v", turnID, err)
		c.settleJudge(sessionID, turnID, nil, judgeErrMessage)
		return
	}

	result, err := parseJudgeResult(resp.Content)
	if err != nil {
		log.Printf("[Judge] Unparseable result on turn %s: %v", turnID, err)
		c.settleJudge(sessionID, turnID, nil, judgeErrMessage)
		return
	}

	c.settleJudge(sessionID, turnID, result, "")
}

// settleJudge stores the judge outcome. A parse or transport failure
// leaves the turn without a judge result so the step stays retriable.
func (c *Coordinator) settleJudge(sessionID, turnID string, result *models.JudgeResult, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		log.Printf("[Judge] Session %s vanished before judge settled: %v", sessionID, err)
		return
	}
	turn := sess.FindTurn(turnID)
	if turn == nil {
		return
	}

	turn.JudgeLoading = false
	turn.JudgeError = errMsg
	if result != nil {
		turn.Judge = result
	}
	sess.Timestamp = time.Now().UnixMilli()
	if err := c.store.PutSession(sess); err != nil {
		log.Printf("[Judge] Failed to persist session %s: %v", sessionID, err)
	}
}

// buildJudgeMessages labels each successful answer with its persona name
// and demands the fixed JSON shape.
func (c *Coordinator) buildJudgeMessages(input models.TurnInput, entries []models.ModelEntry) []providers.Message {
	var sb strings.Builder
	sb.WriteString("Several AI coding assistants answered the same question. ")
	sb.WriteString("Evaluate their answers for correctness, code quality, and usefulness.\n\n")
	sb.WriteString("Question:\n")
	sb.WriteString(input.UserText)
	sb.WriteString("\n\n")

	names := c.personas.Names()
	for i, e := range entries {
		if e.Error != "" || e.Text == "" {
			continue
		}
		name := fmt.Sprintf("Model %d", i+1)
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprintf(&sb, "=== Answer from %s ===\n%s\n\n", name, e.Text)
	}

	sb.WriteString("Respond with ONLY a JSON object, no other text, in exactly this shape:\n")
	sb.WriteString(`{"winner": "<name of the best answer's model>", "reasoning": "<why it wins>", "scores": [{"model": "<name>", "performance": <0-10>}]}`)
	sb.WriteString("\nInclude one scores element per answer shown above.")
	if dir := languageDirective(input.Language); dir != "" {
		sb.WriteString("\nWrite the reasoning text in the same language as this directive requires: ")
		sb.WriteString(dir)
	}

	return []providers.Message{
		{Role: "system", Content: "You are an impartial judge of AI coding answers. You respond only with valid JSON."},
		{Role: "user", Content: sb.String()},
	}
}

// parseJudgeResult decodes the judge model's JSON, tolerating a markdown
// code fence around the object.
func parseJudgeResult(content string) (*models.JudgeResult, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var result models.JudgeResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("invalid judge payload: %w", err)
	}
	if result.Winner == "" && result.Reasoning == "" && len(result.Scores) == 0 {
		return nil, fmt.Errorf("judge payload has no recognized fields")
	}
	return &result, nil
}
