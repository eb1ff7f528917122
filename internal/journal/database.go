package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const scansBucket = "scans"

// ErrEntryNotFound is returned when no entry has the requested ID
var ErrEntryNotFound = errors.New("journal entry not found")

// Outcome is the result of a recorded scan
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// ScanRecord is one recorded receipt scan
type ScanRecord struct {
	ID           string           `json:"id"`
	Filename     string           `json:"filename"`
	ContentType  string           `json:"content_type"`
	SHA256       string           `json:"sha256"`
	OriginalSize int              `json:"original_size"`
	UploadedSize int              `json:"uploaded_size"`
	Attempts     int              `json:"attempts"`
	Outcome      Outcome          `json:"outcome"`
	Error        string           `json:"error,omitempty"`
	Merchant     string           `json:"merchant,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	ArchivePath  string           `json:"archive_path,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// DB defines the interface for journal persistence
type DB interface {
	// SaveEntry inserts or replaces an entry
	SaveEntry(entry *ScanRecord) error

	// GetEntry retrieves an entry by ID
	GetEntry(id string) (*ScanRecord, error)

	// ListEntries returns entries newest first
	ListEntries() ([]*ScanRecord, error)

	// FindByDigest returns entries for the given SHA-256, newest first
	FindByDigest(sha string) ([]*ScanRecord, error)

	// DeleteEntry removes an entry
	DeleteEntry(id string) error

	Close() error
}

// BoltDB implements DB on a bbolt file. Entry IDs are time-ordered, so key
// order is insertion order.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the journal at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(scansBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveEntry(entry *ScanRecord) error {
	if entry.ID == "" {
		return errors.New("entry has no id")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return tx.Bucket([]byte(scansBucket)).Put([]byte(entry.ID), data)
	})
}

func (b *BoltDB) GetEntry(id string) (*ScanRecord, error) {
	var entry *ScanRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(scansBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *BoltDB) ListEntries() ([]*ScanRecord, error) {
	return b.scan(func(*ScanRecord) bool { return true })
}

func (b *BoltDB) FindByDigest(sha string) ([]*ScanRecord, error) {
	return b.scan(func(e *ScanRecord) bool { return e.SHA256 == sha })
}

// scan walks the bucket from the newest key and keeps entries matching keep
func (b *BoltDB) scan(keep func(*ScanRecord) bool) ([]*ScanRecord, error) {
	entries := make([]*ScanRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(scansBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry ScanRecord
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry %s: %w", k, err)
			}
			if keep(&entry) {
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *BoltDB) DeleteEntry(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scansBucket)).Delete([]byte(id))
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
