package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tricoder.app/models"
	"tricoder.app/routing"
)

// StartHTTPServer registers all routes and serves until the listener fails.
func StartHTTPServer(port int) error {
	http.HandleFunc("/", handleRoot)
	http.HandleFunc("/health", handleHealth)

	http.HandleFunc("/api/personas", handlePersonas)
	http.HandleFunc("/api/tools", handleTools)

	http.HandleFunc("/api/sessions", handleSessions)
	http.HandleFunc("/api/sessions/", handleSession)
	http.HandleFunc("/api/turns", handleSubmitTurn)
	http.HandleFunc("/api/retry", handleRetry)
	http.HandleFunc("/api/judge", handleJudge)
	http.HandleFunc("/api/consensus", handleConsensus)

	http.HandleFunc("/api/folders", handleFolders)
	http.HandleFunc("/api/folders/", handleFolder)

	http.HandleFunc("/api/export", handleExport)
	http.HandleFunc("/api/import", handleImport)
	http.HandleFunc("/api/keys", handleKeys)
	http.HandleFunc("/api/keys/", handleKey)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("[HTTP] Listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

// allowCORS writes the standard CORS headers and handles preflight.
// Returns true when the request was a preflight and is already answered.
func allowCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps coordinator gating errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTurnNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrJudgeInFlight), errors.Is(err, ErrConsensusInFlight), errors.Is(err, ErrEntryInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrJudgeNotReady), errors.Is(err, ErrJudgeNoSuccess), errors.Is(err, ErrNoJudgement):
		return http.StatusPreconditionFailed
	case errors.Is(err, routing.ErrMissingAPIKey):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"ports":  map[string]int{"http": HTTP_PORT},
		"mode":   "production",
	}
	if HTTP_PORT != 80 {
		health["mode"] = "development"
	}
	if llmRouter != nil {
		health["router_active"] = true
	}
	if personaRegistry != nil {
		health["personas"] = personaRegistry.Count()
	}
	health["keys"] = map[string]bool{
		"deepseek": recordStore.HasCredential("deepseek_api_key"),
		"gemini":   recordStore.HasCredential("gemini_api_key"),
	}
	writeJSON(w, http.StatusOK, health)
}

func handlePersonas(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET") {
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"personas": personaRegistry.List(),
	})
}

func handleTools(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET") {
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": toolPresets})
}

// handleSessions handles GET /api/sessions
func handleSessions(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET") {
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := recordStore.GetSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// handleSession handles /api/sessions/{id} and /api/sessions/{id}/audit
func handleSession(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, DELETE, PATCH") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session id required", http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	if len(parts) == 2 && parts[1] == "audit" {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entries, err := GetSessionAudit(sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
		return
	}

	switch r.Method {
	case "GET":
		sess, err := recordStore.GetSession(sessionID)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "DELETE":
		if err := recordStore.DeleteSession(sessionID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
	case "PATCH":
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		sess, err := recordStore.GetSession(sessionID)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		sess.Title = body.Title
		sess.Timestamp = time.Now().UnixMilli()
		if err := recordStore.PutSession(sess); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// TurnRequest is the POST /api/turns body.
type TurnRequest struct {
	SessionID    string             `json:"session_id"`
	UserText     string             `json:"user_text"`
	Attachment   *models.Attachment `json:"attachment,omitempty"`
	ToolPreset   string             `json:"tool_preset,omitempty"`
	DeepThinking bool               `json:"deep_thinking,omitempty"`
	Language     string             `json:"language,omitempty"`
}

// handleSubmitTurn handles POST /api/turns
func handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST") {
		return
	}
	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	sessionID, turnID, err := coordinator.SubmitTurn(req.SessionID, models.TurnInput{
		UserText:     req.UserText,
		Attachment:   req.Attachment,
		ToolPreset:   req.ToolPreset,
		DeepThinking: req.DeepThinking,
		Language:     req.Language,
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"turn_id":    turnID,
	})
}

// handleRetry handles POST /api/retry
func handleRetry(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST") {
		return
	}
	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		TurnID    string `json:"turn_id"`
		Index     int    `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := coordinator.RetryPersona(req.SessionID, req.TurnID, req.Index); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

// handleJudge handles POST /api/judge
func handleJudge(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST") {
		return
	}
	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		TurnID    string `json:"turn_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := coordinator.RequestJudgement(req.SessionID, req.TurnID); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "judging"})
}

// handleConsensus handles POST /api/consensus
func handleConsensus(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST") {
		return
	}
	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		TurnID    string `json:"turn_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := coordinator.RequestConsensus(req.SessionID, req.TurnID); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "synthesizing"})
}

// handleFolders handles GET and POST /api/folders
func handleFolders(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, POST") {
		return
	}

	switch r.Method {
	case "GET":
		folders, err := recordStore.GetFolders()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
	case "POST":
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
			http.Error(w, "Folder name required", http.StatusBadRequest)
			return
		}
		folder := &models.Folder{
			ID:       uuid.New().String(),
			Name:     strings.TrimSpace(body.Name),
			Snippets: []models.Snippet{},
		}
		if err := recordStore.PutFolder(folder); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, folder)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFolder handles /api/folders/{id}, /api/folders/{id}/snippets, and
// /api/folders/{id}/snippets/{snippetId}
func handleFolder(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, POST, PATCH, DELETE") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/folders/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Folder id required", http.StatusBadRequest)
		return
	}
	folderID := parts[0]

	// /api/folders/{id}/snippets[/{snippetId}]
	if len(parts) >= 2 && parts[1] == "snippets" {
		handleSnippets(w, r, folderID, parts[2:])
		return
	}

	switch r.Method {
	case "GET":
		folder, err := recordStore.GetFolder(folderID)
		if err != nil {
			writeError(w, http.StatusNotFound, "folder not found")
			return
		}
		writeJSON(w, http.StatusOK, folder)
	case "PATCH":
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
			http.Error(w, "Folder name required", http.StatusBadRequest)
			return
		}
		folder, err := recordStore.GetFolder(folderID)
		if err != nil {
			writeError(w, http.StatusNotFound, "folder not found")
			return
		}
		folder.Name = strings.TrimSpace(body.Name)
		if err := recordStore.PutFolder(folder); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, folder)
	case "DELETE":
		if err := recordStore.DeleteFolder(folderID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": folderID})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleSnippets(w http.ResponseWriter, r *http.Request, folderID string, rest []string) {
	folder, err := recordStore.GetFolder(folderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}

	switch {
	case r.Method == "POST" && len(rest) == 0:
		var body struct {
			Title    string `json:"title"`
			Code     string `json:"code"`
			Language string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
			http.Error(w, "Snippet code required", http.StatusBadRequest)
			return
		}
		if body.Title == "" {
			body.Title = truncateForTitle(body.Code)
		}
		snippet := models.Snippet{
			ID:        uuid.New().String(),
			Title:     body.Title,
			Code:      body.Code,
			Language:  body.Language,
			Timestamp: time.Now().UnixMilli(),
		}
		folder.Snippets = append(folder.Snippets, snippet)
		if err := recordStore.PutFolder(folder); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, snippet)
	case r.Method == "DELETE" && len(rest) == 1 && rest[0] != "":
		snippetID := rest[0]
		kept := folder.Snippets[:0]
		found := false
		for _, s := range folder.Snippets {
			if s.ID == snippetID {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if !found {
			writeError(w, http.StatusNotFound, "snippet not found")
			return
		}
		folder.Snippets = kept
		if err := recordStore.PutFolder(folder); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": snippetID})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExport handles GET /api/export
func handleExport(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET") {
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := ExportBackup(recordStore)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=tricoder-backup-%s.json", time.Now().Format("2006-01-02")))
	w.Write(data)
}

// handleImport handles POST /api/import
func handleImport(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST") {
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	folders, sessions, err := ImportBackup(recordStore, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"folders":  folders,
		"sessions": sessions,
	})
}

// handleKeys handles GET (status) and POST (set) /api/keys. Key values are
// never returned, only presence.
func handleKeys(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, POST") {
		return
	}

	switch r.Method {
	case "GET":
		writeJSON(w, http.StatusOK, map[string]bool{
			"deepseek_api_key": recordStore.HasCredential("deepseek_api_key"),
			"gemini_api_key":   recordStore.HasCredential("gemini_api_key"),
		})
	case "POST":
		var body struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "Key name required", http.StatusBadRequest)
			return
		}
		if !validCredentialName(body.Name) {
			http.Error(w, "Unknown key name", http.StatusBadRequest)
			return
		}
		if err := recordStore.SetCredential(body.Name, body.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"stored": body.Name})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKey handles DELETE /api/keys/{name}
func handleKey(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "DELETE") {
		return
	}
	if r.Method != "DELETE" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/keys/"), "/")
	if !validCredentialName(name) {
		http.Error(w, "Unknown key name", http.StatusBadRequest)
		return
	}
	if err := recordStore.ClearCredential(name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cleared": name})
}

func validCredentialName(name string) bool {
	return name == "deepseek_api_key" || name == "gemini_api_key"
}
