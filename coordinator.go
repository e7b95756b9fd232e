package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
)

var (
	ErrEmptyInput        = errors.New("empty input")
	ErrSessionNotFound   = errors.New("session not found")
	ErrTurnNotFound      = errors.New("turn not found")
	ErrEntryInFlight     = errors.New("persona call still in flight")
	ErrJudgeNotReady     = errors.New("personas still responding")
	ErrJudgeNoSuccess    = errors.New("no successful persona response to judge")
	ErrJudgeInFlight     = errors.New("judge call already in flight")
	ErrNoJudgement       = errors.New("no judge result for this turn")
	ErrConsensusInFlight = errors.New("consensus call already in flight")
)

// SessionStore is the slice of the record store the coordinator needs.
type SessionStore interface {
	GetSession(id string) (*models.Session, error)
	PutSession(sess *models.Session) error
}

// modelCaller abstracts callModel so turn flows can be tested without a
// router behind them.
type modelCaller func(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error)

// Coordinator fans one user input out to every configured persona, tracks
// each call's lifecycle on the owning turn, and runs the follow-up judge
// and consensus calls. All turn mutation happens under c.mu so completions
// arriving in any order stay isolated per persona index.
type Coordinator struct {
	mu             sync.Mutex
	store          SessionStore
	personas       *models.PersonaRegistry
	judgeModel     string
	consensusModel string
	call           modelCaller

	wg sync.WaitGroup
}

// NewCoordinator wires a coordinator over the given store and personas.
func NewCoordinator(store SessionStore, personas *models.PersonaRegistry, judgeModel, consensusModel string, call modelCaller) *Coordinator {
	return &Coordinator{
		store:          store,
		personas:       personas,
		judgeModel:     judgeModel,
		consensusModel: consensusModel,
		call:           call,
	}
}

// Wait blocks until every in-flight model call has settled its entry.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// SubmitTurn creates a turn with one loading entry per persona, appends it
// to the session (creating the session when sessionID is empty), persists,
// and starts the persona calls. Returns the session and turn ids; the
// entries settle asynchronously as each call completes.
func (c *Coordinator) SubmitTurn(sessionID string, input models.TurnInput) (string, string, error) {
	if input.Empty() {
		return "", "", ErrEmptyInput
	}

	c.mu.Lock()
	var sess *models.Session
	if sessionID == "" {
		sess = &models.Session{
			ID:        uuid.New().String(),
			Title:     truncateForTitle(input.UserText),
			Timestamp: time.Now().UnixMilli(),
		}
	} else {
		var err error
		sess, err = c.store.GetSession(sessionID)
		if err != nil {
			c.mu.Unlock()
			return "", "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
	}

	n := c.personas.Count()
	turn := &models.Turn{
		ID:        uuid.New().String(),
		Input:     input,
		Entries:   make([]models.ModelEntry, n),
		Timestamp: time.Now().UnixMilli(),
	}
	for i := range turn.Entries {
		turn.Entries[i] = models.ModelEntry{Loading: true}
	}

	sess.Turns = append(sess.Turns, turn)
	sess.Timestamp = time.Now().UnixMilli()
	if err := c.store.PutSession(sess); err != nil {
		c.mu.Unlock()
		return "", "", fmt.Errorf("failed to persist session: %w", err)
	}
	c.mu.Unlock()

	log.Printf("[Coordinator] Turn %s submitted (session=%s, personas=%d)", turn.ID, sess.ID, n)

	for i := 0; i < n; i++ {
		persona, _ := c.personas.At(i)
		c.wg.Add(1)
		go c.runPersona(sess.ID, turn.ID, i, persona, input)
	}

	return sess.ID, turn.ID, nil
}

// RetryPersona re-runs one settled persona call with the turn's original
// inputs. Entries still in flight are not restartable.
func (c *Coordinator) RetryPersona(sessionID, turnID string, index int) error {
	persona, ok := c.personas.At(index)
	if !ok {
		return fmt.Errorf("persona index %d out of range", index)
	}

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
	// A turn persisted under a smaller persona set may carry fewer
	// entries than the current registry.
	if index >= len(turn.Entries) {
		c.mu.Unlock()
		return fmt.Errorf("persona index %d out of range for turn %s", index, turnID)
	}
	if turn.Entries[index].Loading {
		c.mu.Unlock()
		return ErrEntryInFlight
	}

	turn.Entries[index] = models.ModelEntry{Loading: true}
	sess.Timestamp = time.Now().UnixMilli()
	input := turn.Input
	if err := c.store.PutSession(sess); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to persist session: %w", err)
	}
	c.mu.Unlock()

	log.Printf("[Coordinator] Retrying persona %d on turn %s", index, turnID)

	c.wg.Add(1)
	go c.runPersona(sessionID, turnID, index, persona, input)
	return nil
}

// runPersona executes one persona call and settles entry index on the turn.
// Calls run on a background context: there is no cancellation, a call that
// errors settles its own entry and nothing else.
func (c *Coordinator) runPersona(sessionID, turnID string, index int, persona *models.Persona, input models.TurnInput) {
	defer c.wg.Done()

	messages := c.buildPersonaMessages(sessionID, turnID, index, persona, input)

	req := &providers.UnifiedRequest{
		Model:       persona.ModelID,
		Messages:    messages,
		Temperature: persona.Temperature,
		MaxTokens:   persona.MaxTokens,
		Attachment:  input.Attachment,
	}
	reqCtx := &routing.RequestContext{
		RequestID: uuid.New().String(),
		ModelID:   persona.ModelID,
		SessionID: sessionID,
		TurnID:    turnID,
		Persona:   persona.Name,
		Purpose:   "persona",
	}

	resp, err := c.call(context.Background(), req, reqCtx)

	entry := models.ModelEntry{}
	if err != nil {
		entry.Error = err.Error()
		log.Printf("[Coordinator] Persona %s failed on turn %s: %v", persona.Name, turnID, err)
	} else {
		entry.Text = resp.Content
	}

	c.settleEntry(sessionID, turnID, index, entry)
}

// settleEntry writes the terminal state of one persona entry and persists
// the session. Only entry index is touched.
func (c *Coordinator) settleEntry(sessionID, turnID string, index int, entry models.ModelEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		log.Printf("[Coordinator] Session %s vanished before entry %d settled: %v", sessionID, index, err)
		return
	}
	turn := sess.FindTurn(turnID)
	if turn == nil || index >= len(turn.Entries) {
		log.Printf("[Coordinator] Turn %s vanished before entry %d settled", turnID, index)
		return
	}

	turn.Entries[index] = entry
	sess.Timestamp = time.Now().UnixMilli()
	if err := c.store.PutSession(sess); err != nil {
		log.Printf("[Coordinator] Failed to persist session %s: %v", sessionID, err)
	}
}

// buildPersonaMessages assembles the prompt for one persona: its system
// instruction plus directives, the persona's own prior exchanges in this
// session, then the current user content.
func (c *Coordinator) buildPersonaMessages(sessionID, turnID string, index int, persona *models.Persona, input models.TurnInput) []providers.Message {
	system := persona.Instruction
	if input.DeepThinking {
		system += "\n\nThink through the problem step by step in depth before giving your final answer."
	}
	if dir := languageDirective(input.Language); dir != "" {
		system += "\n\n" + dir
	}

	messages := []providers.Message{{Role: "system", Content: system}}

	// Prior settled exchanges for this persona only
	c.mu.Lock()
	if sess, err := c.store.GetSession(sessionID); err == nil {
		for _, t := range sess.Turns {
			if t.ID == turnID {
				break
			}
			if index >= len(t.Entries) {
				continue
			}
			e := t.Entries[index]
			if e.Loading || e.Error != "" || e.Text == "" {
				continue
			}
			messages = append(messages,
				providers.Message{Role: "user", Content: t.Input.UserText},
				providers.Message{Role: "assistant", Content: e.Text},
			)
		}
	}
	c.mu.Unlock()

	messages = append(messages, providers.Message{
		Role:    "user",
		Content: applyToolPreset(input.ToolPreset, input.UserText),
	})

	return messages
}

// languageDirective returns the prompt directive for a non-default UI
// language, or "" for the default.
func languageDirective(language string) string {
	if language == "" || language == "en" {
		return ""
	}
	name, ok := languageNames[language]
	if !ok {
		name = language
	}
	return fmt.Sprintf("Respond in %s.", name)
}

var languageNames = map[string]string{
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ru": "Russian",
	"hi": "Hindi",
	"ar": "Arabic",
}
