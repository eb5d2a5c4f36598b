package bird

import (
	"encoding/json"
	"errors"

	"braces.dev/errtrace"
	badgerdb "github.com/dgraph-io/badger/v3"
)

// Mirror is a persisted key value copy of one remote entity collection.
// Values are stored as JSON.
type Mirror[V any] struct {
	db   *badgerdb.DB
	name string
}

// OpenMirror opens the mirror in dir. An empty dir keeps the mirror in memory.
func OpenMirror[V any](name, dir string) (*Mirror[V], error) {
	opts := badgerdb.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{name: name})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &Mirror[V]{db: db, name: name}, nil
}

// Get returns the value of key. ok is false if there is none.
func (m *Mirror[V]) Get(key string) (v V, ok bool, err error) {
	err = m.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &v)
		})
	})
	return v, ok, errtrace.Wrap(err)
}

func (m *Mirror[V]) Set(key string, v V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(m.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	}))
}

func (m *Mirror[V]) Delete(key string) error {
	return errtrace.Wrap(m.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	}))
}

func (m *Mirror[V]) Has(key string) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Keys returns all keys in byte order.
func (m *Mirror[V]) Keys() ([]string, error) {
	keys := []string{}
	err := m.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, errtrace.Wrap(err)
}

// Values returns all values in key order.
func (m *Mirror[V]) Values() ([]V, error) {
	values := []V{}
	err := m.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v V
			if err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &v)
			}); err != nil {
				return err
			}
			values = append(values, v)
		}
		return nil
	})
	return values, errtrace.Wrap(err)
}

func (m *Mirror[V]) Len() (int, error) {
	keys, err := m.Keys()
	return len(keys), err
}

func (m *Mirror[V]) Close() error {
	return errtrace.Wrap(m.db.Close())
}

// badgerLogger routes badger's own logging to the bird logger.
type badgerLogger struct {
	name string
}

func (l badgerLogger) Errorf(format string, args ...any) {
	log().Errorf("[badger %s] "+format, append([]any{l.name}, args...)...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	log().Warnf("[badger %s] "+format, append([]any{l.name}, args...)...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	log().Debugf("[badger %s] "+format, append([]any{l.name}, args...)...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	log().Debugf("[badger %s] "+format, append([]any{l.name}, args...)...)
}
