package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	auditDB      *sql.DB
	auditDBOnce  sync.Once
	auditEnabled bool = true
)

// DisableAudit turns off all audit logging
func DisableAudit() {
	auditEnabled = false
	log.Println("[AUDIT] Audit logging DISABLED")
}

// LLMAuditEntry represents a complete model interaction
type LLMAuditEntry struct {
	ID           int64
	SessionID    string
	Timestamp    time.Time
	Model        string
	Deployment   string
	Provider     string
	FullInput    string // JSON encoded
	FullOutput   string
	InputTokens  int
	OutputTokens int
	Error        string
}

// InitAuditDB initializes the SQLite database for model audit logging
func InitAuditDB(dataDir string) error {
	if os.Getenv("ENABLE_LLM_AUDIT") == "false" {
		DisableAudit()
		return nil
	}

	var err error
	auditDBOnce.Do(func() {
		auditDB, err = sql.Open("sqlite3", filepath.Join(dataDir, "llm_audit.db"))
		if err != nil {
			log.Printf("Failed to open audit database: %v", err)
			return
		}

		schema := `
		CREATE TABLE IF NOT EXISTS llm_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			model TEXT NOT NULL,
			deployment TEXT,
			provider TEXT,
			full_input TEXT NOT NULL,
			full_output TEXT NOT NULL,
			input_tokens INTEGER,
			output_tokens INTEGER,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_session_id ON llm_audit(session_id);
		CREATE INDEX IF NOT EXISTS idx_timestamp ON llm_audit(timestamp);
		CREATE INDEX IF NOT EXISTS idx_model ON llm_audit(model);
		`

		_, err = auditDB.Exec(schema)
		if err != nil {
			log.Printf("Failed to create audit schema: %v", err)
			return
		}

		log.Println("[AUDIT] Model audit database initialized")
	})

	return err
}

// LogLLMInteraction logs a complete model interaction to the audit database
func LogLLMInteraction(sessionID string, model string, deployment string, provider string, input interface{}, output string, inputTokens int, outputTokens int, err error) {
	if !auditEnabled {
		return
	}

	if auditDB == nil {
		return
	}

	inputJSON, jsonErr := json.Marshal(input)
	if jsonErr != nil {
		log.Printf("[AUDIT] Failed to marshal input: %v", jsonErr)
		inputJSON = []byte(fmt.Sprintf("Error marshaling input: %v", jsonErr))
	}

	errorStr := ""
	if err != nil {
		errorStr = err.Error()
	}

	query := `
		INSERT INTO llm_audit (
			session_id, model, deployment, provider,
			full_input, full_output, input_tokens, output_tokens, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, dbErr := auditDB.Exec(query,
		sessionID, model, deployment, provider,
		string(inputJSON), output, inputTokens, outputTokens, errorStr)

	if dbErr != nil {
		log.Printf("[AUDIT] Failed to log model interaction: %v", dbErr)
		return
	}

	if debugMode {
		log.Printf("[AUDIT] Logged interaction session=%s model=%s in=%d out=%d",
			sessionID, model, inputTokens, outputTokens)
	}
}

// GetSessionAudit retrieves all interactions recorded for a session
func GetSessionAudit(sessionID string) ([]LLMAuditEntry, error) {
	if auditDB == nil {
		return nil, fmt.Errorf("audit database not initialized")
	}

	query := `
		SELECT id, session_id, timestamp, model, deployment, provider,
		       full_input, full_output, input_tokens, output_tokens, error
		FROM llm_audit
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := auditDB.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LLMAuditEntry
	for rows.Next() {
		var entry LLMAuditEntry
		err := rows.Scan(
			&entry.ID, &entry.SessionID, &entry.Timestamp,
			&entry.Model, &entry.Deployment, &entry.Provider,
			&entry.FullInput, &entry.FullOutput,
			&entry.InputTokens, &entry.OutputTokens, &entry.Error,
		)
		if err != nil {
			log.Printf("[AUDIT] Error scanning row: %v", err)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
