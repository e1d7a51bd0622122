// Package baseline persists one FileRecord per absolute path in a badger
// database and implements the classification that turns a fresh fingerprint
// into a scan outcome.
package baseline

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/bitmend/pkg/bitmend/logging"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// ErrNotFound is returned when a path has no baseline entry.
var ErrNotFound = errors.New("baseline entry not found")

const maxConflictRetries = 16

// Store wraps Badger for baseline operations.
type Store struct {
	db  *badger.DB
	dir string
}

// badgerLogger forwards badger warnings and errors to the baseline
// component logger and drops its chatter.
type badgerLogger struct {
	*logging.Logger
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

// Open opens or creates the baseline database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", types.ErrStore, dir, err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{logging.Get(logging.Baseline)}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrStore, dir, err)
	}

	return &Store{db: db, dir: dir}, nil
}

// With opens the store in dir, runs fn and always closes it, including when
// fn fails or panics. Close errors (flush included) are joined with fn's.
func With(dir string, fn func(*Store) error) (err error) {
	s, err := Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// Dir returns the database directory.
func (s *Store) Dir() string {
	return s.dir
}

// Flush makes all committed writes durable.
func (s *Store) Flush() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrFlush, err)
	}
	return nil
}

// Close flushes and closes the store. A flush failure is reported even
// when the close itself succeeds.
func (s *Store) Close() error {
	ferr := s.Flush()
	if err := s.db.Close(); err != nil {
		return errors.Join(ferr, fmt.Errorf("%w: close: %w", types.ErrStore, err))
	}
	return ferr
}

// Get retrieves the record for path.
func (s *Store) Get(path string) (*FileRecord, error) {
	var rec FileRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: get %s: %w", types.ErrStore, path, err)
		}
		return item.Value(rec.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put stores rec for path, replacing any previous record.
func (s *Store) Put(path string, rec FileRecord) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), rec.Encode())
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", types.ErrStore, path, err)
	}
	return nil
}

// Delete removes the record for path. Deleting a missing entry is not an error.
func (s *Store) Delete(path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", types.ErrStore, path, err)
	}
	return nil
}

// DeletePrefix removes all entries whose path starts with prefix and
// returns how many were removed. An empty prefix clears the store.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: list %q: %w", types.ErrStore, prefix, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("%w: delete %s: %w", types.ErrStore, k, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("%w: delete prefix %q: %w", types.ErrStore, prefix, err)
	}

	return len(keys), nil
}

// Walk calls fn for each entry under prefix in key order. An error from fn
// stops the walk and is returned unchanged.
func (s *Store) Walk(prefix string, fn func(path string, rec FileRecord) error) error {
	var fnErr error

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			var rec FileRecord
			if err := item.Value(rec.Decode); err != nil {
				return fmt.Errorf("%s: %w", item.Key(), err)
			}
			if err := fn(string(item.Key()), rec); err != nil {
				fnErr = err
				return err
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

// Reconcile reads the prior record for path, classifies fresh against it and
// writes fresh when the outcome calls for it, all in one transaction. It
// returns the outcome and the prior record (nil when the path was untracked).
// Transactions that lose a write race are retried.
func (s *Store) Reconcile(path string, fresh FileRecord) (types.Outcome, *FileRecord, error) {
	key := []byte(path)

	var (
		outcome types.Outcome
		prev    *FileRecord
		err     error
	)

	for range maxConflictRetries {
		err = s.db.Update(func(txn *badger.Txn) error {
			prev = nil

			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return fmt.Errorf("%w: get %s: %w", types.ErrStore, path, err)
			default:
				var rec FileRecord
				if err := item.Value(rec.Decode); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				prev = &rec
			}

			outcome = Classify(prev, fresh)
			if !writes(outcome) {
				return nil
			}
			if err := txn.Set(key, fresh.Encode()); err != nil {
				return fmt.Errorf("%w: put %s: %w", types.ErrStore, path, err)
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}

	if errors.Is(err, badger.ErrConflict) {
		return 0, nil, fmt.Errorf("%w: reconcile %s: %w", types.ErrStore, path, err)
	}
	if err != nil {
		return 0, nil, err
	}
	return outcome, prev, nil
}

// Size returns the on-disk size of the LSM tree and value log.
func (s *Store) Size() (lsm, vlog int64) {
	return s.db.Size()
}
