package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
)

// RequestConsensus asks the consensus model to synthesize one answer from
// a turn's persona outputs and its judge rationale. Enabled only when the
// turn has a judge result and no consensus call is already in flight; a
// fresh call after success overwrites the stored result.
func (c *Coordinator) RequestConsensus(sessionID, turnID string) error {
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
	if turn.Judge == nil {
		c.mu.Unlock()
		return ErrNoJudgement
	}
	if turn.Consensus != nil && turn.Consensus.Loading {
		c.mu.Unlock()
		return ErrConsensusInFlight
	}

	turn.Consensus = &models.ConsensusResult{Loading: true}
	sess.Timestamp = time.Now().UnixMilli()
	input := turn.Input
	judge := *turn.Judge
	entries := make([]models.ModelEntry, len(turn.Entries))
	copy(entries, turn.Entries)
	if err := c.store.PutSession(sess); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to persist session: %w", err)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runConsensus(sessionID, turnID, input, judge, entries)
	return nil
}

func (c *Coordinator) runConsensus(sessionID, turnID string, input models.TurnInput, judge models.JudgeResult, entries []models.ModelEntry) {
	defer c.wg.Done()

	req := &providers.UnifiedRequest{
		Model:       c.consensusModel,
		Messages:    c.buildConsensusMessages(input, judge, entries),
		Temperature: 0.5,
		MaxTokens:   4000,
	}
	reqCtx := &routing.RequestContext{
		RequestID: uuid.New().String(),
		ModelID:   c.consensusModel,
		SessionID: sessionID,
		TurnID:    turnID,
		Purpose:   "consensus",
	}

	resp, err := c.call(context.Background(), req, reqCtx)

	result := models.ConsensusResult{}
	if err != nil {
		result.Error = err.Error()
		log.Printf("[Consensus] Call failed on turn %s: %v", turnID, err)
	} else {
		result.Text = resp.Content
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sess, serr := c.store.GetSession(sessionID)
	if serr != nil {
		log.Printf("[Consensus] Session %s vanished before consensus settled: %v", sessionID, serr)
		return
	}
	turn := sess.FindTurn(turnID)
	if turn == nil {
		return
	}
	turn.Consensus = &result
	sess.Timestamp = time.Now().UnixMilli()
	if perr := c.store.PutSession(sess); perr != nil {
		log.Printf("[Consensus] Failed to persist session %s: %v", sessionID, perr)
	}
}

func (c *Coordinator) buildConsensusMessages(input models.TurnInput, judge models.JudgeResult, entries []models.ModelEntry) []providers.Message {
	var sb strings.Builder
	sb.WriteString("Several AI coding assistants answered the same question. A judge has ")
	sb.WriteString("already compared them. Synthesize one final answer that takes the best ")
	sb.WriteString("from each, fixing any weaknesses the judge identified.\n\n")
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

	fmt.Fprintf(&sb, "Judge's verdict: winner %s. Rationale: %s\n\n", judge.Winner, judge.Reasoning)
	sb.WriteString("Give only the final synthesized answer, not a comparison.")
	if dir := languageDirective(input.Language); dir != "" {
		sb.WriteString("\n" + dir)
	}

	return []providers.Message{
		{Role: "system", Content: "You synthesize the single best answer from several AI coding answers."},
		{Role: "user", Content: sb.String()},
	}
}
