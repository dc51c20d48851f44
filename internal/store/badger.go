package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/yanun0323/errors"

	"exchange/internal/codec"
	"exchange/internal/journal"
	"exchange/pkg/exception"
)

// Key layout:
//
//	j/<seq>                  batch id (8 bytes) + encoded command
//	m/<state id>             seq of the first persist record of the state
//	s/<state id>/<kind>/<i>  snapshot seq (8 bytes) + shard state
const (
	prefixJournal  = "j/"
	prefixMarker   = "m/"
	prefixSnapshot = "s/"
)

// BadgerConfig controls the badger processor.
type BadgerConfig struct {
	Dir      string
	InMemory bool
	NoSync   bool
}

// BadgerProcessor keeps the journal and snapshots in one badger key space.
type BadgerProcessor struct {
	db *badger.DB
}

// NewBadgerProcessor opens or creates the database.
func NewBadgerProcessor(cfg BadgerConfig) (*BadgerProcessor, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Dir != "":
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(!cfg.NoSync)
	default:
		return nil, errors.Wrap(exception.ErrInvalidConfig, "badger store: Dir is empty")
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &BadgerProcessor{db: db}, nil
}

func journalKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixJournal, seq))
}

func markerKey(stateID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixMarker, stateID))
}

func snapshotKey(stateID int64, shard journal.ShardID) []byte {
	return []byte(fmt.Sprintf("%s%020d/%d/%06d", prefixSnapshot, stateID, shard.Kind, shard.Index))
}

func (p *BadgerProcessor) StoreJournalBatch(_ context.Context, batch journal.Batch) error {
	return p.db.Update(func(txn *badger.Txn) error {
		for i := range batch.Records {
			rec := &batch.Records[i]
			val := make([]byte, 8, 8+codec.CommandPayloadSize+len(rec.Data))
			binary.LittleEndian.PutUint64(val, uint64(batch.ID))
			val = append(val, codec.EncodeCommand(nil, rec)...)
			if err := txn.Set(journalKey(rec.Seq), val); err != nil {
				return errors.Wrap(err, "set journal record").With("seq", rec.Seq)
			}
			if !rec.Kind.IsPersist() {
				continue
			}
			mk := markerKey(rec.StateID)
			if _, err := txn.Get(mk); err == nil {
				continue
			} else if err != badger.ErrKeyNotFound {
				return errors.Wrap(err, "get state marker")
			}
			var seq [8]byte
			binary.LittleEndian.PutUint64(seq[:], uint64(rec.Seq))
			if err := txn.Set(mk, seq[:]); err != nil {
				return errors.Wrap(err, "set state marker")
			}
		}
		return nil
	})
}

func (p *BadgerProcessor) StoreSnapshot(_ context.Context, snap journal.Snapshot) error {
	val := make([]byte, 8, 8+len(snap.Data))
	binary.LittleEndian.PutUint64(val, uint64(snap.Seq))
	val = append(val, snap.Data...)
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.StateID, snap.Shard), val)
	})
}

func (p *BadgerProcessor) LoadSnapshot(_ context.Context, stateID int64, shard journal.ShardID) (journal.Snapshot, error) {
	var val []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(stateID, shard))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotNotFound, "state %d shard %s", stateID, shard)
	}
	if err != nil {
		return journal.Snapshot{}, errors.Wrap(err, "load snapshot")
	}
	if len(val) < 8 {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotCorrupted, "state %d shard %s", stateID, shard)
	}
	return journal.Snapshot{
		StateID: stateID,
		Shard:   shard,
		Seq:     int64(binary.LittleEndian.Uint64(val[:8])),
		Data:    val[8:],
	}, nil
}

func (p *BadgerProcessor) LoadJournalBatchesAfter(_ context.Context, stateID int64) ([]journal.Batch, error) {
	var batches []journal.Batch
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(markerKey(stateID))
		if err == badger.ErrKeyNotFound {
			return errors.Wrapf(exception.ErrStateNotFound, "state %d", stateID)
		}
		if err != nil {
			return errors.Wrap(err, "get state marker")
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) != 8 {
			return errors.Wrapf(exception.ErrRecordCorrupted, "state %d marker", stateID)
		}
		marker := int64(binary.LittleEndian.Uint64(raw))

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJournal)
		it := txn.NewIterator(opts)
		defer it.Close()

		var current *journal.Batch
		for it.Seek(journalKey(marker)); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) < 8 {
				return errors.Wrapf(exception.ErrRecordCorrupted, "key %s", it.Item().Key())
			}
			batchID := int64(binary.LittleEndian.Uint64(val[:8]))
			cmd, ok := codec.DecodeCommand(val[8:])
			if !ok {
				return errors.Wrapf(exception.ErrRecordCorrupted, "key %s", it.Item().Key())
			}
			if current == nil || current.ID != batchID {
				batches = append(batches, journal.Batch{ID: batchID, FirstSeq: cmd.Seq})
				current = &batches[len(batches)-1]
			}
			current.LastSeq = cmd.Seq
			current.Records = append(current.Records, cmd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_, out, err := journal.After(batches, stateID)
	return out, err
}

// Records returns the number of journal records stored.
func (p *BadgerProcessor) Records() (int, error) {
	n := 0
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixJournal)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (p *BadgerProcessor) Close() error {
	return p.db.Close()
}
