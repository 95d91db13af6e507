package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
)

var ErrKeyNotFound = errors.New("key not found")

// ErrStoreLocked is returned when another process, usually a running server,
// holds the store directory.
var ErrStoreLocked = errors.New("data store is in use by another process")

const spoolPrefix = "spool/"

// Store is the room's local durable state: the persisted credential and the
// spool of answers that were recorded but not yet accepted by the backend.
type Store struct {
	db *badger.DB
}

// Open opens the store under path. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		opts = badger.DefaultOptions(filepath.Join(path, "badger"))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreLocked, path, err)
		}
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) GetJSON(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every key starting with prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// SpooledAnswer is a recorded answer kept on disk until the backend accepts it.
type SpooledAnswer struct {
	SessionID    string    `json:"session_id"`
	QuestionID   string    `json:"question_id"`
	QuestionText string    `json:"question_text"`
	ArtifactID   string    `json:"artifact_id"`
	MimeType     string    `json:"mime_type"`
	Data         []byte    `json:"data"`
	SpooledAt    time.Time `json:"spooled_at"`
}

func spoolKey(sessionID, questionID string) string {
	return spoolPrefix + sessionID + "/" + questionID
}

func (s *Store) SpoolAnswer(a SpooledAnswer) error {
	if a.SpooledAt.IsZero() {
		a.SpooledAt = time.Now().UTC()
	}
	return s.PutJSON(spoolKey(a.SessionID, a.QuestionID), a)
}

func (s *Store) SpooledAnswer(sessionID, questionID string) (*SpooledAnswer, error) {
	var a SpooledAnswer
	if err := s.GetJSON(spoolKey(sessionID, questionID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) UnspoolAnswer(sessionID, questionID string) error {
	return s.Delete(spoolKey(sessionID, questionID))
}

// PendingAnswers returns the spooled answers of a session. An empty session
// id lists every spooled answer.
func (s *Store) PendingAnswers(sessionID string) ([]SpooledAnswer, error) {
	prefix := spoolPrefix
	if sessionID != "" {
		prefix += sessionID + "/"
	}
	keys, err := s.Keys(prefix)
	if err != nil {
		return nil, err
	}
	answers := make([]SpooledAnswer, 0, len(keys))
	for _, key := range keys {
		var a SpooledAnswer
		if err := s.GetJSON(key, &a); err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, nil
}
