package models

import "strings"

// Attachment is a file the user attached to a turn, carried inline as
// base64 the same way the chat APIs accept it.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64 payload
}

// TurnInput is everything the user supplied for one turn. It is stored on
// the turn verbatim so a retry can re-run a single persona call with the
// exact original inputs.
type TurnInput struct {
	UserText     string      `json:"user_text"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	ToolPreset   string      `json:"tool_preset,omitempty"`
	DeepThinking bool        `json:"deep_thinking,omitempty"`
	Language     string      `json:"language,omitempty"`
}

// Empty reports whether the input carries nothing to send. Text may be
// empty only when an attachment is present.
func (in *TurnInput) Empty() bool {
	return strings.TrimSpace(in.UserText) == "" && in.Attachment == nil
}

// ModelEntry is the lifecycle record for one persona's call within a turn.
// Exactly one of the three states holds at any time: loading, errored, or
// settled with text.
type ModelEntry struct {
	Text    string `json:"text"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// PersonaScore is the judge's numeric score for one persona's answer.
type PersonaScore struct {
	Model       string  `json:"model"`
	Performance float64 `json:"performance"`
}

// JudgeResult is the parsed verdict of a judge call. Winner is stored
// verbatim; the judge model is asked for one of the persona names but the
// value is not validated against them.
type JudgeResult struct {
	Winner    string         `json:"winner"`
	Reasoning string         `json:"reasoning"`
	Scores    []PersonaScore `json:"scores"`
}

// ConsensusResult holds the synthesized best answer. Same lifecycle shape
// as a persona entry.
type ConsensusResult struct {
	Text    string `json:"text"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Turn is one user input and its aggregate outcome: one entry per persona,
// plus the optional judge and consensus results.
type Turn struct {
	ID        string       `json:"id"`
	Input     TurnInput    `json:"input"`
	Entries   []ModelEntry `json:"models"`
	Timestamp int64        `json:"timestamp"`

	JudgeLoading bool             `json:"comparison_loading,omitempty"`
	Judge        *JudgeResult     `json:"comparison,omitempty"`
	JudgeError   string           `json:"comparison_error,omitempty"`
	Consensus    *ConsensusResult `json:"consensus,omitempty"`
}

// Settled reports whether every persona entry has left the loading state.
func (t *Turn) Settled() bool {
	for i := range t.Entries {
		if t.Entries[i].Loading {
			return false
		}
	}
	return true
}

// HasSuccess reports whether at least one persona entry settled with text
// and no error. The judge step requires this.
func (t *Turn) HasSuccess() bool {
	for i := range t.Entries {
		if !t.Entries[i].Loading && t.Entries[i].Error == "" && t.Entries[i].Text != "" {
			return true
		}
	}
	return false
}

// Session is an ordered list of turns persisted as one unit.
type Session struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Turns     []*Turn `json:"messages"`
	Timestamp int64   `json:"timestamp"`
}

// FindTurn returns the turn with the given ID, or nil.
func (s *Session) FindTurn(turnID string) *Turn {
	for _, t := range s.Turns {
		if t.ID == turnID {
			return t
		}
	}
	return nil
}

// Snippet is a saved blob of code or text. Immutable once created.
type Snippet struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Code      string `json:"code"`
	Language  string `json:"language"`
	Timestamp int64  `json:"timestamp"`
}

// Folder owns a collection of snippets.
type Folder struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Snippets []Snippet `json:"snippets"`
}

// Backup is the import/export document. Field names are part of the wire
// format and must not change.
type Backup struct {
	Version   int        `json:"version"`
	Timestamp int64      `json:"timestamp"`
	Folders   []*Folder  `json:"folders"`
	History   []*Session `json:"history"`
}

// BackupVersion is the only version this build reads and writes.
const BackupVersion = 1
