package buffer

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketActions = []byte("actions")
	bucketRefs    = []byte("refs")
	bucketState   = []byte("state")

	keyWatermark = []byte("watermark")
)

// ErrActionNotFound is returned when an action id is not queued.
var ErrActionNotFound = errors.New("action not found")

// Store wraps BoltDB to persist the offline action queue across restarts.
// Actions are keyed by a bucket sequence, so iteration follows enqueue order.
type Store struct {
	db *bolt.DB
}

// Open initializes the BoltDB file and ensures the buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketActions, bucketRefs, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Append stores an action at the tail of the queue and returns it with its id set.
func (s *Store) Append(action Action) (Action, error) {
	if s == nil || s.db == nil {
		return action, bolt.ErrDatabaseNotOpen
	}
	action.normalize()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		action.bucketKey = seqKey(seq)
		payload, err := json.Marshal(action)
		if err != nil {
			return err
		}
		return b.Put(action.bucketKey, payload)
	})
	return action, err
}

// List returns every queued action in enqueue order without removing them.
func (s *Store) List() ([]Action, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	var actions []Action
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketActions).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			actions = append(actions, decodeAction(k, v))
		}
		return nil
	})
	return actions, err
}

// Get returns the queued action with the given id.
func (s *Store) Get(id string) (Action, error) {
	actions, err := s.List()
	if err != nil {
		return Action{}, err
	}
	for _, a := range actions {
		if a.ID == id {
			return a, nil
		}
	}
	return Action{}, ErrActionNotFound
}

// Replace rewrites a queued action in place, keeping its position.
func (s *Store) Replace(action Action) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(action.bucketKey) == 0 {
		stored, err := s.Get(action.ID)
		if err != nil {
			return err
		}
		action.bucketKey = stored.bucketKey
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		if b.Get(action.bucketKey) == nil {
			return ErrActionNotFound
		}
		return b.Put(action.bucketKey, payload)
	})
}

// Remove deletes the action with the given id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if id == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketActions).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if decodeAction(k, v).ID == id {
				return c.Delete()
			}
		}
		return nil
	})
}

// Size returns the number of queued actions.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketActions).Stats().KeyN
		return nil
	})
	return count, err
}

// BindRef records the outcome of a placeholder's create action.
func (s *Store) BindRef(ref string, binding RefBinding) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	payload, err := json.Marshal(binding)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(ref), payload)
	})
}

// Ref returns the binding of a placeholder, if its create has been replayed.
func (s *Store) Ref(ref string) (RefBinding, bool, error) {
	if s == nil || s.db == nil {
		return RefBinding{}, false, bolt.ErrDatabaseNotOpen
	}
	var (
		binding RefBinding
		found   bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(ref))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &binding)
	})
	return binding, found, err
}

// Watermark returns the floor version this client last observed.
func (s *Store) Watermark() (int64, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var version int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketState).Get(keyWatermark)
		if v == nil {
			return nil
		}
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return err
		}
		version = parsed
		return nil
	})
	return version, err
}

// SetWatermark stores the floor version this client last observed.
func (s *Store) SetWatermark(version int64) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyWatermark, []byte(strconv.FormatInt(version, 10)))
	})
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for diagnostics.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

// decodeAction reads a stored row. A row that no longer decodes is returned as
// an OperationUnreadable action keyed by its position, so the replayer drops it
// like any other rejected action.
func decodeAction(k, v []byte) Action {
	var action Action
	if err := json.Unmarshal(v, &action); err != nil || action.ID == "" {
		action = Action{
			ID:        unreadablePrefix + hex.EncodeToString(k),
			Operation: OperationUnreadable,
			Payload:   json.RawMessage("{}"),
		}
	}
	action.bucketKey = append([]byte(nil), k...)
	return action
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
