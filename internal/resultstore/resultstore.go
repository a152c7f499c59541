// Package resultstore is the task backend's result-lookup half: an
// embedded key-value store giving the coordinator per-task-id state
// lookup independent of the NSQ broker's own delivery bookkeeping. It
// plays the RESULT_BACKEND role described in spec §6.4, the way a Celery
// deployment pairs a broker with a separate result backend (see
// original_source/fulltext/celery.py).
package resultstore

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/arxiv/fulltext/internal/domain"
)

// BackendState is the closed set of states the task backend can report
// for a task id, per spec §4.5's state table.
type BackendState string

const (
	StatePending BackendState = "PENDING" // default: never enqueued
	StateSent    BackendState = "SENT"
	StateStarted BackendState = "STARTED"
	StateRetry   BackendState = "RETRY"
	StateFailure BackendState = "FAILURE"
	StateSuccess BackendState = "SUCCESS"
)

// Record is what Lookup returns: the backend state plus, for FAILURE and
// SUCCESS, the associated result payload (an exception string or an
// owner, respectively).
type Record struct {
	State  BackendState
	Result string
}

// Store wraps a badger database keyed by task id.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfigurationError, "opening result backend at "+path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MarkSent records that taskID has been published to the broker. This is
// the "SENT-on-publish hook" spec §6.2 requires so that "enqueued but not
// started" can be distinguished from "unknown to the backend at all".
func (s *Store) MarkSent(taskID string) error {
	return s.write(taskID, Record{State: StateSent})
}

// MarkStarted records that a worker has begun executing taskID.
func (s *Store) MarkStarted(taskID string) error {
	return s.write(taskID, Record{State: StateStarted})
}

// RecordFailure records a terminal failure with its exception message.
func (s *Store) RecordFailure(taskID, exception string) error {
	return s.write(taskID, Record{State: StateFailure, Result: exception})
}

// RecordSuccess records a terminal success. result carries the owner, if
// any, so get_task can lift it onto the Extraction per spec §4.5.
func (s *Store) RecordSuccess(taskID, owner string) error {
	return s.write(taskID, Record{State: StateSuccess, Result: owner})
}

// Lookup returns the current record for taskID. If the backend has never
// seen taskID, it returns StatePending and a nil error: PENDING is the
// backend's default, not an error (spec §4.5).
func (s *Store) Lookup(taskID string) (Record, error) {
	var record Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(taskID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			record = Record{State: StatePending}
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record = decodeRecord(val)
			return nil
		})
	})
	if err != nil {
		return Record{}, domain.WrapError(domain.ErrStorageFailed, "looking up task "+taskID, err)
	}
	return record, nil
}

func (s *Store) write(taskID string, record Record) error {
	encoded := encodeRecord(record)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(taskID), encoded)
	})
	if err != nil {
		return domain.WrapError(domain.ErrTaskCreationFailed, "writing task "+taskID, err)
	}
	return nil
}

// encodeRecord/decodeRecord use a trivial "state\x00result" wire format:
// task records are small and internal-only, so there is no need for a
// general-purpose serialisation library here.
func encodeRecord(r Record) []byte {
	return []byte(string(r.State) + "\x00" + r.Result)
}

func decodeRecord(raw []byte) Record {
	s := string(raw)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return Record{State: BackendState(s[:i]), Result: s[i+1:]}
		}
	}
	return Record{State: BackendState(s)}
}
