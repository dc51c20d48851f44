package store

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exchange/internal/codec"
	"exchange/internal/journal"
	"exchange/internal/schema"
	"exchange/pkg/conn"
	"exchange/pkg/exception"
)

const loadPageSize = 1000

type journalRow struct {
	Seq       int64  `gorm:"primaryKey;autoIncrement:false"`
	BatchID   int64  `gorm:"index;not null"`
	Kind      uint16 `gorm:"not null"`
	StateID   int64  `gorm:"index;not null"`
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (journalRow) TableName() string { return "exchange_journal" }

type snapshotRow struct {
	StateID    int64 `gorm:"primaryKey;autoIncrement:false"`
	ShardKind  uint8 `gorm:"primaryKey;autoIncrement:false"`
	ShardIndex int   `gorm:"primaryKey;autoIncrement:false"`
	Seq        int64 `gorm:"not null"`
	Data       []byte
	CreatedAt  time.Time
}

func (snapshotRow) TableName() string { return "exchange_snapshot" }

// GormProcessor keeps the journal and snapshots in SQL tables.
type GormProcessor struct {
	client *conn.Client
	db     *gorm.DB
}

// NewGormProcessor connects and migrates the tables.
func NewGormProcessor(opt conn.Option) (*GormProcessor, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, err
	}
	db := client.DB()
	if err := db.AutoMigrate(&journalRow{}, &snapshotRow{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &GormProcessor{client: client, db: db}, nil
}

func (p *GormProcessor) StoreJournalBatch(ctx context.Context, batch journal.Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	rows := make([]journalRow, 0, len(batch.Records))
	for i := range batch.Records {
		rec := &batch.Records[i]
		rows = append(rows, journalRow{
			Seq:     rec.Seq,
			BatchID: batch.ID,
			Kind:    uint16(rec.Kind),
			StateID: rec.StateID,
			Payload: codec.EncodeCommand(nil, rec),
		})
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 256).Error
	})
	if err != nil {
		return errors.Wrap(err, "insert journal batch").With("batch", batch.ID)
	}
	return nil
}

func (p *GormProcessor) StoreSnapshot(ctx context.Context, snap journal.Snapshot) error {
	row := snapshotRow{
		StateID:    snap.StateID,
		ShardKind:  uint8(snap.Shard.Kind),
		ShardIndex: snap.Shard.Index,
		Seq:        snap.Seq,
		Data:       snap.Data,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "upsert snapshot").With("state", snap.StateID)
	}
	return nil
}

func (p *GormProcessor) LoadSnapshot(ctx context.Context, stateID int64, shard journal.ShardID) (journal.Snapshot, error) {
	var rows []snapshotRow
	err := p.db.WithContext(ctx).
		Where("state_id = ? AND shard_kind = ? AND shard_index = ?", stateID, uint8(shard.Kind), shard.Index).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return journal.Snapshot{}, errors.Wrap(err, "select snapshot")
	}
	if len(rows) == 0 {
		return journal.Snapshot{}, errors.Wrapf(exception.ErrSnapshotNotFound, "state %d shard %s", stateID, shard)
	}
	return journal.Snapshot{StateID: stateID, Shard: shard, Seq: rows[0].Seq, Data: rows[0].Data}, nil
}

func (p *GormProcessor) LoadJournalBatchesAfter(ctx context.Context, stateID int64) ([]journal.Batch, error) {
	db := p.db.WithContext(ctx)

	var markers []journalRow
	err := db.Select("seq").
		Where("state_id = ? AND kind IN ?", stateID, []uint16{uint16(schema.CommandPersistStateMatching), uint16(schema.CommandPersistStateRisk)}).
		Order("seq ASC").
		Limit(1).
		Find(&markers).Error
	if err != nil {
		return nil, errors.Wrap(err, "select state marker")
	}
	if len(markers) == 0 {
		return nil, errors.Wrapf(exception.ErrStateNotFound, "state %d", stateID)
	}

	var (
		batches []journal.Batch
		page    []journalRow
	)
	res := db.Where("seq >= ?", markers[0].Seq).Order("seq ASC").FindInBatches(&page, loadPageSize, func(_ *gorm.DB, _ int) error {
		for i := range page {
			cmd, ok := codec.DecodeCommand(page[i].Payload)
			if !ok || cmd.Seq != page[i].Seq {
				return errors.Wrapf(exception.ErrRecordCorrupted, "journal row seq %d", page[i].Seq)
			}
			if n := len(batches); n == 0 || batches[n-1].ID != page[i].BatchID {
				batches = append(batches, journal.Batch{ID: page[i].BatchID, FirstSeq: cmd.Seq})
			}
			b := &batches[len(batches)-1]
			b.LastSeq = cmd.Seq
			b.Records = append(b.Records, cmd)
		}
		return nil
	})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "select journal")
	}
	_, out, err := journal.After(batches, stateID)
	return out, err
}

func (p *GormProcessor) Close() error {
	return p.client.Close()
}
