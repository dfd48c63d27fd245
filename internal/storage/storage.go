// Package storage keeps upload sessions for SimpleML.
// It uses BoltDB as the underlying storage engine to hold each uploaded roster
// and its screening result between the upload, predict and download steps.
//
// Sessions are short-lived: PurgeExpired removes everything older than the
// configured TTL, so nothing outlives the teacher's working session.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"simpleml/internal/ml"

	"go.etcd.io/bbolt"
)

const (
	uploadsBucket = "uploads" // Bucket name for raw uploaded CSV files
	resultsBucket = "results" // Bucket name for screening results

	// FileName is the database file created under the data path.
	FileName = "simpleml-sessions.db"
)

// ErrNotFound is returned when a session id has no stored record.
var ErrNotFound = errors.New("session not found")

// Upload is a roster file as the teacher sent it.
type Upload struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Data      []byte    `json:"data"`
}

// Result is the outcome of screening one upload.
type Result struct {
	ID           string                 `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	ModelVersion string                 `json:"model_version"`
	Threshold    float64                `json:"threshold"`
	Rows         int                    `json:"rows"`
	AtRisk       int                    `json:"at_risk"`
	Features     []string               `json:"features"`
	Dropped      []string               `json:"dropped,omitempty"`
	Expected     float64                `json:"expected_value"`
	Importance   []ml.FeatureImportance `json:"importance"`
	CSV          []byte                 `json:"csv"`
}

// stamped is decoded when only the age of a record matters.
type stamped struct {
	CreatedAt time.Time `json:"created_at"`
}

// Store provides persistent session storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, FileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(uploadsBucket)); err != nil {
			return fmt.Errorf("create uploads bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(resultsBucket)); err != nil {
			return fmt.Errorf("create results bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveUpload stores an upload under its id, replacing any previous one.
func (s *Store) SaveUpload(u Upload) error {
	if u.ID == "" {
		return errors.New("upload id is empty")
	}
	return s.put(uploadsBucket, u.ID, u)
}

// GetUpload returns the upload stored under id.
func (s *Store) GetUpload(id string) (*Upload, error) {
	var u Upload
	if err := s.get(uploadsBucket, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveResult stores the screening result for a session.
func (s *Store) SaveResult(r Result) error {
	if r.ID == "" {
		return errors.New("result id is empty")
	}
	return s.put(resultsBucket, r.ID, r)
}

// GetResult returns the screening result stored under id.
func (s *Store) GetResult(id string) (*Result, error) {
	var r Result
	if err := s.get(resultsBucket, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Count returns the number of stored uploads.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(uploadsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// PurgeExpired deletes every upload and result created before now-ttl and
// returns the number of sessions removed.
func (s *Store) PurgeExpired(now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)
	purged := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{uploadsBucket, resultsBucket} {
			b := tx.Bucket([]byte(name))

			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var rec stamped
				if err := json.Unmarshal(v, &rec); err != nil || rec.CreatedAt.Before(cutoff) {
					expired = append(expired, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return fmt.Errorf("delete %s/%s: %w", name, k, err)
				}
			}
			if name == uploadsBucket {
				purged = len(expired)
			}
		}
		return nil
	})

	return purged, err
}

func (s *Store) put(bucket, id string, v interface{}) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
	})
}

func (s *Store) get(bucket, id string, v interface{}) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal %s record: %w", bucket, err)
		}
		return nil
	})
}
