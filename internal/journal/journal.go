// Package journal keeps a local audit trail of receipt scans. It is not a
// cache of server state: entries record what was sent and what came back.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/budget-sync/internal/scanning"
)

// Journal records scans and archives the bytes that were uploaded
type Journal struct {
	db      DB
	storage Storage
	now     func() time.Time
	newID   func() (uuid.UUID, error)
}

// NewJournal creates a Journal. storage may be nil to skip archiving.
func NewJournal(db DB, storage Storage) *Journal {
	return &Journal{
		db:      db,
		storage: storage,
		now:     time.Now,
		newID:   uuid.NewV7,
	}
}

// Record implements scanning.Recorder
func (j *Journal) Record(ctx context.Context, scan scanning.Scan) error {
	id, err := j.newID()
	if err != nil {
		return fmt.Errorf("generating entry id: %w", err)
	}

	entry := &ScanRecord{
		ID:           id.String(),
		Filename:     scan.Filename,
		ContentType:  scan.ContentType,
		SHA256:       scan.Digest,
		OriginalSize: scan.OriginalSize,
		UploadedSize: len(scan.Uploaded.Data),
		Attempts:     scan.Attempts,
		Outcome:      OutcomeOK,
		CreatedAt:    j.now().UTC(),
	}
	if scan.Err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = scan.Err.Error()
	}
	if scan.Receipt != nil {
		amount := scan.Receipt.Amount
		entry.Merchant = scan.Receipt.Merchant
		entry.Amount = &amount
	}

	if j.storage != nil && len(scan.Uploaded.Data) > 0 {
		name := fmt.Sprintf("%s_%s", entry.ID, archiveName(scan))
		path, err := j.storage.Save(name, scan.Uploaded.Data)
		if err != nil {
			slog.Warn("Failed to archive upload", "filename", scan.Filename, "error", err)
		} else {
			entry.ArchivePath = path
		}
	}

	if err := j.db.SaveEntry(entry); err != nil {
		if entry.ArchivePath != "" {
			if delErr := j.storage.Delete(entry.ArchivePath); delErr != nil {
				slog.Warn("Failed to delete archived upload", "path", entry.ArchivePath, "error", delErr)
			}
		}
		return fmt.Errorf("saving entry: %w", err)
	}

	slog.Debug("Recorded scan", "id", entry.ID, "outcome", entry.Outcome, "attempts", entry.Attempts)
	return nil
}

// PriorScans returns earlier scans of the same input, newest first
func (j *Journal) PriorScans(digest string) ([]*ScanRecord, error) {
	entries, err := j.db.FindByDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("finding prior scans: %w", err)
	}
	return entries, nil
}

// Entries returns up to limit entries, newest first. A limit of zero or
// less returns everything.
func (j *Journal) Entries(limit int) ([]*ScanRecord, error) {
	entries, err := j.db.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Remove deletes an entry and its archived upload
func (j *Journal) Remove(id string) error {
	entry, err := j.db.GetEntry(id)
	if err != nil {
		return fmt.Errorf("getting entry: %w", err)
	}
	if entry.ArchivePath != "" && j.storage != nil {
		if err := j.storage.Delete(entry.ArchivePath); err != nil {
			slog.Warn("Failed to delete archived upload", "id", id, "path", entry.ArchivePath, "error", err)
		}
	}
	if err := j.db.DeleteEntry(id); err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return nil
}

func archiveName(scan scanning.Scan) string {
	name := scan.Filename
	if name == "" {
		name = "receipt"
	}
	if scan.Uploaded.Converted {
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	}
	return name
}
