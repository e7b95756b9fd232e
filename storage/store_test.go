package storage

import (
	"path/filepath"
	"reflect"
	"testing"

	"tricoder.app/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.key"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)

	want := &models.Session{
		ID:    "sess-1",
		Title: "quicksort in go",
		Turns: []*models.Turn{{
			ID:    "turn-1",
			Input: models.TurnInput{UserText: "implement quicksort", Language: "es"},
			Entries: []models.ModelEntry{
				{Text: "func quicksort..."},
				{Error: "connection reset"},
				{Loading: true},
			},
			Timestamp: 1700000000000,
			Consensus: &models.ConsensusResult{Text: "merged answer"},
		}},
		Timestamp: 1700000000001,
	}

	if err := store.PutSession(want); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	got, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	// Re-persisting unchanged and reloading yields the same value again
	if err := store.PutSession(got); err != nil {
		t.Fatalf("re-put failed: %v", err)
	}
	again, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reflect.DeepEqual(again, want) {
		t.Errorf("idempotence violated:\n got %+v\nwant %+v", again, want)
	}
}

func TestPutIsUpsert(t *testing.T) {
	store := openTestStore(t)

	sess := &models.Session{ID: "sess-1", Title: "first"}
	if err := store.PutSession(sess); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	sess.Title = "second"
	if err := store.PutSession(sess); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	sessions, err := store.GetSessions()
	if err != nil {
		t.Fatalf("GetSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("upsert created a duplicate, have %d sessions", len(sessions))
	}
	if sessions[0].Title != "second" {
		t.Errorf("title = %q, want %q", sessions[0].Title, "second")
	}
}

func TestDeleteSession(t *testing.T) {
	store := openTestStore(t)

	store.PutSession(&models.Session{ID: "sess-1"})
	if err := store.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession("sess-1"); err == nil {
		t.Error("deleted session should not be readable")
	}
}

func TestFolderRoundTrip(t *testing.T) {
	store := openTestStore(t)

	want := &models.Folder{
		ID:   "folder-1",
		Name: "Snippets",
		Snippets: []models.Snippet{
			{ID: "s1", Title: "reverse", Code: "func reverse() {}", Language: "go", Timestamp: 1},
		},
	}
	if err := store.PutFolder(want); err != nil {
		t.Fatalf("PutFolder failed: %v", err)
	}
	got, err := store.GetFolder("folder-1")
	if err != nil {
		t.Fatalf("GetFolder failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	store := openTestStore(t)

	if store.HasCredential("deepseek_api_key") {
		t.Error("fresh store should have no credentials")
	}
	if got := store.GetCredential("deepseek_api_key"); got != "" {
		t.Errorf("missing credential should read as empty, got %q", got)
	}

	if err := store.SetCredential("deepseek_api_key", "sk-test-123"); err != nil {
		t.Fatalf("SetCredential failed: %v", err)
	}
	if got := store.GetCredential("deepseek_api_key"); got != "sk-test-123" {
		t.Errorf("credential = %q, want sk-test-123", got)
	}
	if !store.HasCredential("deepseek_api_key") {
		t.Error("HasCredential should report stored key")
	}

	if err := store.ClearCredential("deepseek_api_key"); err != nil {
		t.Fatalf("ClearCredential failed: %v", err)
	}
	if store.HasCredential("deepseek_api_key") {
		t.Error("cleared credential should be gone")
	}
}

func TestSeedCredentialNeverOverwrites(t *testing.T) {
	store := openTestStore(t)

	if err := store.SeedCredential("gemini_api_key", "env-key"); err != nil {
		t.Fatalf("SeedCredential failed: %v", err)
	}
	if got := store.GetCredential("gemini_api_key"); got != "env-key" {
		t.Errorf("seed into empty store should stick, got %q", got)
	}

	if err := store.SetCredential("gemini_api_key", "user-key"); err != nil {
		t.Fatalf("SetCredential failed: %v", err)
	}
	if err := store.SeedCredential("gemini_api_key", "env-key-2"); err != nil {
		t.Fatalf("SeedCredential failed: %v", err)
	}
	if got := store.GetCredential("gemini_api_key"); got != "user-key" {
		t.Errorf("seed must not overwrite a user-set key, got %q", got)
	}
}

func TestCredentialsEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.key"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	const secret = "sk-very-secret-value"
	if err := store.SetCredential("deepseek_api_key", secret); err != nil {
		t.Fatalf("SetCredential failed: %v", err)
	}

	var stored []byte
	err = store.db.QueryRow(`SELECT value FROM credentials WHERE name = ?`, "deepseek_api_key").Scan(&stored)
	if err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if string(stored) == secret {
		t.Error("credential stored in plaintext")
	}
}
