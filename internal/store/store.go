package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket = []byte("sessions")
	projectsBucket = []byte("projects")
)

// SessionRecord is the durable bookkeeping entry for one client token. It
// outlives the in-memory terminal sessions and is consulted during auth.
type SessionRecord struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ProjectRecord is a minimal project metadata entry.
type ProjectRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists session and project records in a bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(sessionsBucket); createErr != nil {
			return createErr
		}
		_, createErr := tx.CreateBucketIfNotExists(projectsBucket)
		return createErr
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSession fetches the record for a token, creating one when the token
// is new. Returns the record and whether it was created by this call. On an
// existing record, LastSeenAt is refreshed.
func (s *Store) EnsureSession(token string) (SessionRecord, bool, error) {
	var record SessionRecord
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sessionsBucket)
		now := time.Now().UTC()

		if raw := bucket.Get([]byte(token)); raw != nil {
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("decode session record: %w", err)
			}
			record.LastSeenAt = now
			record.UpdatedAt = now
		} else {
			created = true
			record = SessionRecord{
				ID:         uuid.New().String(),
				Token:      token,
				Name:       "Session " + token[:8],
				CreatedAt:  now,
				UpdatedAt:  now,
				LastSeenAt: now,
			}
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(token), payload)
	})
	return record, created, err
}

// GetSession fetches the record for a token, or nil when absent.
func (s *Store) GetSession(token string) (*SessionRecord, error) {
	var record *SessionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(sessionsBucket).Get([]byte(token))
		if raw == nil {
			return nil
		}
		var r SessionRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode session record: %w", err)
		}
		record = &r
		return nil
	})
	return record, err
}

// PutProject stores a project record.
func (s *Store) PutProject(record ProjectRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(projectsBucket).Put([]byte(record.ID), payload)
	})
}

// GetProject fetches a project record by id, or nil when absent.
func (s *Store) GetProject(id string) (*ProjectRecord, error) {
	var record *ProjectRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(projectsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		var r ProjectRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode project record: %w", err)
		}
		record = &r
		return nil
	})
	return record, err
}

// ListProjects returns every project record.
func (s *Store) ListProjects() ([]ProjectRecord, error) {
	var records []ProjectRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(projectsBucket).ForEach(func(_, raw []byte) error {
			var r ProjectRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("decode project record: %w", err)
			}
			records = append(records, r)
			return nil
		})
	})
	return records, err
}
