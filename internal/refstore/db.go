package refstore

import (
	"context"
	"errors"
	"fmt"

	"mivta/internal/embedding"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

func (s *Store) put(key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

// scan calls fn with every value under prefix in key order.
func (s *Store) scan(ctx context.Context, prefix string, fn func(val []byte) error) error {
	p := []byte(prefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) deletePrefix(ctx context.Context, prefix string) error {
	var keys [][]byte
	p := []byte(prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// SaveParams persists the model's fitted parameters. It returns false when
// the model is untrained.
func (s *Store) SaveParams(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, ok := s.model.Params()
	if !ok {
		return false, nil
	}
	return true, s.put(keyModel, p)
}

// LoadParams reads saved model parameters.
func (s *Store) LoadParams(ctx context.Context) (embedding.Params, error) {
	var p embedding.Params
	err := s.get(ctx, keyModel, &p)
	return p, err
}

// ClearParams deletes saved model parameters.
func (s *Store) ClearParams(ctx context.Context) error {
	return s.deleteKey(ctx, keyModel)
}

func (s *Store) deleteKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// badgerLogger routes badger's logs through logrus, demoting info to debug.
type badgerLogger struct {
	l *logrus.Logger
}

func (b badgerLogger) Errorf(f string, v ...any) {
	if b.l != nil {
		b.l.Errorf("badger: "+f, v...)
	}
}

func (b badgerLogger) Warningf(f string, v ...any) {
	if b.l != nil {
		b.l.Warnf("badger: "+f, v...)
	}
}

func (b badgerLogger) Infof(f string, v ...any) {
	if b.l != nil {
		b.l.Debugf("badger: "+f, v...)
	}
}

func (b badgerLogger) Debugf(f string, v ...any) {
	if b.l != nil {
		b.l.Tracef("badger: "+f, v...)
	}
}
