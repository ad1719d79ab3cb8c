package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

const (
	slotPrefix            = "slot/"
	dirPermission         = 0o750
	defaultGCInterval     = 5 * time.Minute
	defaultGCDiscardRatio = 0.5
	maxConflictRetries    = 3
)

// errStale aborts a transaction whose write would go backwards.
var errStale = errors.New("stale version")

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB

	path           string
	inMemory       bool
	syncWrites     bool
	gcInterval     time.Duration
	gcDiscardRatio float64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	logger logger.Logger
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (creating if needed) the database described by opts.
func NewBadgerStore(ctx context.Context, opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{
		syncWrites:     true,
		gcInterval:     defaultGCInterval,
		gcDiscardRatio: defaultGCDiscardRatio,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}

	var bopts badger.Options
	if s.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if s.path == "" {
			return nil, ErrNoPath
		}
		if err := os.MkdirAll(s.path, dirPermission); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", s.path, err)
		}
		bopts = badger.DefaultOptions(s.path)
	}
	bopts = bopts.
		WithSyncWrites(s.syncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{ctx: ctx, logger: s.logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s.db = db

	if s.gcInterval > 0 && !s.inMemory {
		go s.runGC(ctx)
	} else {
		close(s.doneCh)
	}

	s.logger.Info(ctx, "slot store opened",
		logger.String("path", s.path),
		logger.Bool("in_memory", s.inMemory),
	)
	return s, nil
}

func slotKey(slot string) ([]byte, error) {
	if strings.TrimSpace(slot) == "" {
		return nil, ErrInvalidSlot
	}
	return []byte(slotPrefix + slot), nil
}

// Restore returns the record in slot.
func (s *BadgerStore) Restore(ctx context.Context, slot string) (Record, error) {
	key, err := slotKey(slot)
	if err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var raw []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return Record{}, ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return Record{}, ErrClosed
	case err != nil:
		return Record{}, fmt.Errorf("read slot %s: %w", slot, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, slot, err)
	}
	if rec.Document == nil {
		rec.Document = model.Document{}
	}
	return rec, nil
}

// Persist writes doc into slot when version is newer than what is stored.
func (s *BadgerStore) Persist(ctx context.Context, slot string, version uint64, doc model.Document) (bool, error) {
	key, err := slotKey(slot)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(Record{Version: version, SavedAt: time.Now().UTC(), Document: doc})
	if err != nil {
		return false, fmt.Errorf("encode slot %s: %w", slot, err)
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		head, found, err := headVersion(txn, key)
		if err != nil {
			return err
		}
		if found && head >= version {
			return errStale
		}
		return txn.Set(key, payload)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStale):
		return false, nil
	case errors.Is(err, badger.ErrDBClosed):
		return false, ErrClosed
	default:
		return false, fmt.Errorf("write slot %s: %w", slot, err)
	}
}

// Purge writes a tombstone into slot.
func (s *BadgerStore) Purge(ctx context.Context, slot string, version uint64) error {
	key, err := slotKey(slot)
	if err != nil {
		return err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		head, _, err := headVersion(txn, key)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(Record{Version: max(head, version), SavedAt: time.Now().UTC(), Deleted: true})
		if err != nil {
			return err
		}
		return txn.Set(key, payload)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("purge slot %s: %w", slot, err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return err
	}
}

// headVersion reads the version stored under key. An undecodable value
// counts as absent so a fresh write can repair it.
func headVersion(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &head) }); err != nil {
		return 0, false, nil
	}
	return head.Version, true, nil
}

// Delete removes slot.
func (s *BadgerStore) Delete(ctx context.Context, slot string) error {
	key, err := slotKey(slot)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	return nil
}

// Slots lists stored slot ids.
func (s *BadgerStore) Slots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(slotPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), slotPrefix))
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, ErrClosed
	}
	return out, err
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		err = s.db.Close()
	})
	return err
}

func (s *BadgerStore) runGC(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite only means there was nothing worth collecting.
			if err := s.db.RunValueLogGC(s.gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn(ctx, "badger value log GC failed", logger.Error(err))
			}
		}
	}
}

// badgerLogger routes badger's own output through the service logger.
type badgerLogger struct {
	ctx    context.Context
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(l.ctx, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(l.ctx, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(l.ctx, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(l.ctx, strings.TrimSpace(fmt.Sprintf(format, args...)))
}
