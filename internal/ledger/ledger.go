// Package ledger persists a write-only diagnostic record of every worker
// termination to a local bbolt database. It exists purely for post-hoc
// debugging (what ran, when, with what outcome) — nothing in this module
// ever reads it back to reconstruct scheduling state, so the fleet still
// carries no durable backlog: a process restart forgets every in-flight
// worker exactly as it would without the ledger at all.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/worklet/fleet/pkg/fleet"
)

var bucketName = []byte("terminations")

// Ledger appends a record per worker termination. Safe for concurrent use;
// bbolt serializes writers internally.
type Ledger struct {
	db *bbolt.DB
}

// Open creates or opens the bbolt database at path.
func Open(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// record is the on-disk shape of one termination entry.
type record struct {
	WorkerID  string    `json:"workerId"`
	Outcome   string    `json:"outcome"` // "completed" or "failed"
	ExitCode  int       `json:"exitCode"`
	ErrorHint string    `json:"errorHint,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
}

// RecordCompletion appends a completion entry, keyed by workerID + timestamp
// so resumed workers that complete more than once don't overwrite history.
func (l *Ledger) RecordCompletion(task fleet.CompletedTask, at time.Time) error {
	return l.append(record{
		WorkerID:  task.WorkerID,
		Outcome:   "completed",
		SessionID: task.SessionID,
		At:        at,
	})
}

// RecordFailure appends a failure entry.
func (l *Ledger) RecordFailure(task fleet.FailedTask, at time.Time) error {
	return l.append(record{
		WorkerID:  task.WorkerID,
		Outcome:   "failed",
		ExitCode:  task.ExitCode,
		ErrorHint: task.ErrorHint,
		At:        at,
	})
}

func (l *Ledger) append(rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal record: %w", err)
	}
	key := fmt.Sprintf("%s/%d", rec.WorkerID, rec.At.UnixNano())
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), b)
	})
}

// Close closes the underlying database file.
func (l *Ledger) Close() error {
	return l.db.Close()
}
