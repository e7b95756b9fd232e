package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tricoder.app/models"
	"tricoder.app/storage"
)

// ExportBackup serializes every session and folder into the portable
// backup document.
func ExportBackup(store *storage.Store) ([]byte, error) {
	sessions, err := store.GetSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	folders, err := store.GetFolders()
	if err != nil {
		return nil, fmt.Errorf("failed to read folders: %w", err)
	}

	backup := &models.Backup{
		Version:   models.BackupVersion,
		Timestamp: time.Now().UnixMilli(),
		Folders:   folders,
		History:   sessions,
	}

	return json.MarshalIndent(backup, "", "  ")
}

// ImportBackup upserts every folder and session from a backup document.
// Records with matching ids are overwritten (last write wins); everything
// else in the store is left untouched.
func ImportBackup(store *storage.Store, data []byte) (int, int, error) {
	var backup models.Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return 0, 0, fmt.Errorf("invalid backup document: %w", err)
	}
	if backup.Version != models.BackupVersion {
		return 0, 0, fmt.Errorf("unsupported backup version %d", backup.Version)
	}

	imported := 0
	for _, folder := range backup.Folders {
		if folder == nil || folder.ID == "" {
			continue
		}
		if err := store.PutFolder(folder); err != nil {
			return imported, 0, fmt.Errorf("failed to import folder %s: %w", folder.ID, err)
		}
		imported++
	}

	sessionsImported := 0
	for _, sess := range backup.History {
		if sess == nil || sess.ID == "" {
			continue
		}
		if err := store.PutSession(sess); err != nil {
			return imported, sessionsImported, fmt.Errorf("failed to import session %s: %w", sess.ID, err)
		}
		sessionsImported++
	}

	log.Printf("[Backup] Imported %d folders, %d sessions", imported, sessionsImported)
	return imported, sessionsImported, nil
}
