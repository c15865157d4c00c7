// Package logstore keeps the output of plugin wrappers for later inspection.
package logstore

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// ErrUnknownPlugin is returned when nothing was ever logged for a plugin.
var ErrUnknownPlugin = errors.New("no logs for plugin")

var epoch = time.Unix(0, 0)

// Store persists plugin log lines in a bbolt database, one bucket per
// plugin id.
// A key is formatted as follows:
// field: | unix nanos | sequence |
// bytes: | 8          | 8        |
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log store %s", path)
	}
	return &Store{db: db, now: time.Now}, nil
}

func bucket(uniqueID int) []byte { return []byte(strconv.Itoa(uniqueID)) }

func key(t time.Time, seq uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

// Store saves line as logged by uniqueID at t.
func (s *Store) Store(uniqueID int, t time.Time, line string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket(uniqueID))
		if err != nil {
			return errors.Wrap(err, "failed to create bucket")
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(key(t, seq), []byte(line))
	})
}

// Append saves line as logged by uniqueID now. Failures are dropped, so it
// can serve as a log sink.
func (s *Store) Append(uniqueID int, line string) {
	_ = s.Store(uniqueID, s.now(), line) // nolint: errcheck
}

// LogsSince returns the lines uniqueID logged after t, oldest first. A t
// before the Unix epoch returns everything.
func (s *Store) LogsSince(uniqueID int, t time.Time) ([]string, error) {
	logs := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket(uniqueID))
		if b == nil {
			return ErrUnknownPlugin
		}
		c := b.Cursor()
		k, v := c.First()
		if t.After(epoch) {
			k, v = c.Seek(key(t.Add(time.Nanosecond), 0))
		}
		for ; k != nil; k, v = c.Next() {
			logs = append(logs, string(v))
		}
		return nil
	})
	return logs, err
}

// Plugins returns the ids with stored logs.
func (s *Store) Plugins() ([]int, error) {
	var ids []int
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			id, err := strconv.Atoi(string(name))
			if err != nil {
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})
	sort.Ints(ids)
	return ids, err
}

// Forget deletes everything logged by uniqueID.
func (s *Store) Forget(uniqueID int) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucket(uniqueID))
	})
	if err == bbolt.ErrBucketNotFound {
		return nil
	}
	return err
}

// Writer returns a writer storing every line written to it under uniqueID.
func (s *Store) Writer(uniqueID int) *Writer {
	return &Writer{s: s, id: uniqueID}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Writer stores each written line. A write must hold whole lines.
type Writer struct {
	s  *Store
	id int
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	t := w.s.now()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if err := w.s.Store(w.id, t, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
