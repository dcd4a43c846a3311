package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"crmoverlay/api/internal/store"
)

// Badger is the embedded default backend.
type Badger struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadger opens (or creates) the database in dir. An empty dir keeps the
// data in memory.
func OpenBadger(dir string, logger *zap.Logger) (*Badger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	logger.Info("local store opened", zap.String("backend", "badger"), zap.String("dir", dir))
	return &Badger{db: db, logger: logger}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) LoadContacts(_ context.Context, operator string) ([]store.Contact, error) {
	contacts := []store.Contact{}
	if err := b.get(key(operator, contactsKind), &contacts); err != nil {
		return []store.Contact{}, fmt.Errorf("load contacts: %w", err)
	}
	return contacts, nil
}

func (b *Badger) SaveContacts(_ context.Context, operator string, contacts []store.Contact) error {
	if err := b.set(key(operator, contactsKind), contacts); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	return nil
}

func (b *Badger) LoadLabels(_ context.Context, operator string) ([]store.Label, error) {
	labels := []store.Label{}
	if err := b.get(key(operator, labelsKind), &labels); err != nil {
		return []store.Label{}, fmt.Errorf("load labels: %w", err)
	}
	return labels, nil
}

func (b *Badger) SaveLabels(_ context.Context, operator string, labels []store.Label) error {
	if err := b.set(key(operator, labelsKind), labels); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	return nil
}

// get leaves dest untouched when the key is missing.
func (b *Badger) get(k string, dest any) error {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) set(k string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), data)
	})
}
