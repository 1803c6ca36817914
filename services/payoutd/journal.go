package payoutd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Disbursement statuses.
const (
	StatusSent         = "sent"
	StatusAcknowledged = "acknowledged"
)

// Disbursement records one transfer to a payout address. LastIndex is the
// highest ledger index among the pending entries the transfer paid for.
type Disbursement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Address   string    `gorm:"index;not null"`
	Amount    uint64    `gorm:"not null"`
	Floor     uint64    `gorm:"not null"`
	LastIndex uint64    `gorm:"not null"`
	TxHash    string    `gorm:"not null"`
	Status    string    `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a UUID when missing.
func (d *Disbursement) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Cursor persists the export floor between restarts.
type Cursor struct {
	ID        uint `gorm:"primaryKey"`
	Floor     uint64
	UpdatedAt time.Time
}

const cursorRowID = 1

// Journal is the drainer's durable record of transfers.
type Journal struct {
	db *gorm.DB
}

// OpenJournal connects to dsn. postgres:// URLs use the postgres driver and
// anything else is treated as a SQLite path.
func OpenJournal(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("payoutd: journal dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("payoutd: open journal: %w", err)
	}
	if err := db.AutoMigrate(&Disbursement{}, &Cursor{}); err != nil {
		return nil, fmt.Errorf("payoutd: migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Floor returns the persisted export floor, zero when none was stored.
func (j *Journal) Floor(ctx context.Context) (uint64, error) {
	var cursor Cursor
	err := j.db.WithContext(ctx).First(&cursor, cursorRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cursor.Floor, nil
}

// SetFloor persists the export floor.
func (j *Journal) SetFloor(ctx context.Context, floor uint64) error {
	cursor := Cursor{ID: cursorRowID, Floor: floor}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"floor", "updated_at"}),
	}).Create(&cursor).Error
}

// Unacknowledged sums the transfers sent to address that were never
// acknowledged upstream.
func (j *Journal) Unacknowledged(ctx context.Context, address string) (uint64, error) {
	rows, err := j.Outstanding(ctx, address)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, row := range rows {
		total += row.Amount
	}
	return total, nil
}

// Outstanding returns the unacknowledged transfers to address, oldest first.
func (j *Journal) Outstanding(ctx context.Context, address string) ([]Disbursement, error) {
	var rows []Disbursement
	err := j.db.WithContext(ctx).
		Where("address = ? AND status = ?", address, StatusSent).
		Order("created_at, id").
		Find(&rows).Error
	return rows, err
}

// PendingAddresses lists addresses with unacknowledged transfers.
func (j *Journal) PendingAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	err := j.db.WithContext(ctx).Model(&Disbursement{}).
		Where("status = ?", StatusSent).
		Distinct().Order("address").
		Pluck("address", &addresses).Error
	return addresses, err
}

// RecordSent stores a completed transfer.
func (j *Journal) RecordSent(ctx context.Context, address string, amount, floor, lastIndex uint64, txHash string) (*Disbursement, error) {
	row := &Disbursement{Address: address, Amount: amount, Floor: floor, LastIndex: lastIndex, TxHash: txHash, Status: StatusSent}
	if err := j.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// MarkAcknowledged flips every sent transfer for address.
func (j *Journal) MarkAcknowledged(ctx context.Context, address string) error {
	return j.db.WithContext(ctx).Model(&Disbursement{}).
		Where("address = ? AND status = ?", address, StatusSent).
		Update("status", StatusAcknowledged).Error
}

// AcknowledgeRows flips the given sent transfers.
func (j *Journal) AcknowledgeRows(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return j.db.WithContext(ctx).Model(&Disbursement{}).
		Where("id IN ? AND status = ?", ids, StatusSent).
		Update("status", StatusAcknowledged).Error
}

// Disbursements returns the journal for address, oldest first.
func (j *Journal) Disbursements(ctx context.Context, address string) ([]Disbursement, error) {
	var rows []Disbursement
	err := j.db.WithContext(ctx).Where("address = ?", address).Order("created_at, id").Find(&rows).Error
	return rows, err
}

// Totals reports the number of transfers and the amount disbursed.
func (j *Journal) Totals(ctx context.Context) (int64, uint64, error) {
	var out struct {
		Count int64
		Sum   uint64
	}
	err := j.db.WithContext(ctx).Model(&Disbursement{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS sum").
		Scan(&out).Error
	return out.Count, out.Sum, err
}
