package workqueue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// WorkItem is one durable queue row. Items are dequeued oldest-first per
// queue; Complete stamps processed_at, or records the error and bumps
// retry_count so the item becomes visible again.
type WorkItem struct {
	ID           string     `gorm:"primaryKey;size:26"`
	Queue        string     `gorm:"index:idx_work_items_queue,priority:1;not null"`
	Payload      []byte     `gorm:"not null"`
	EnqueuedAt   time.Time  `gorm:"index:idx_work_items_queue,priority:2;not null"`
	ProcessedAt  *time.Time `gorm:"index"`
	ErrorMessage string
	RetryCount   int `gorm:"not null;default:0"`
}

func (WorkItem) TableName() string { return "work_items" }

// ErrEmpty is returned by Receive when the queue has no pending items.
var ErrEmpty = errors.New("workqueue: queue is empty")

// GormQueue is the durable Queue backed by a relational store.
type GormQueue struct {
	db *gorm.DB
}

// OpenSQLiteQueue opens (or creates) the queue database at path and
// migrates the work item schema.
func OpenSQLiteQueue(path string) (*GormQueue, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("workqueue: open queue store: %w", err)
	}
	return NewGormQueue(db)
}

func NewGormQueue(db *gorm.DB) (*GormQueue, error) {
	if err := db.AutoMigrate(&WorkItem{}); err != nil {
		return nil, fmt.Errorf("workqueue: migrate queue store: %w", err)
	}
	return &GormQueue{db: db}, nil
}

func (q *GormQueue) Push(ctx context.Context, queue string, payload []byte) error {
	now := time.Now().UTC()
	item := WorkItem{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Queue:      queue,
		Payload:    payload,
		EnqueuedAt: now,
	}
	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		return fmt.Errorf("workqueue: enqueue on %s: %w", queue, err)
	}
	return nil
}

// Receive returns the oldest unprocessed item on queue, or ErrEmpty.
// The item stays pending until Complete is called, giving at-least-once
// delivery across worker restarts.
func (q *GormQueue) Receive(ctx context.Context, queue string) (*WorkItem, error) {
	var item WorkItem
	err := q.db.WithContext(ctx).
		Where("queue = ? AND processed_at IS NULL", queue).
		Order("enqueued_at ASC, id ASC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("workqueue: receive from %s: %w", queue, err)
	}
	return &item, nil
}

// Complete finishes item: a nil procErr marks it processed, otherwise
// the error text is recorded and the retry counter incremented so the
// item is picked up again.
func (q *GormQueue) Complete(ctx context.Context, item *WorkItem, procErr error) error {
	tx := q.db.WithContext(ctx).Model(&WorkItem{}).Where("id = ?", item.ID)
	if procErr == nil {
		now := time.Now().UTC()
		err := tx.Updates(map[string]any{
			"processed_at":  &now,
			"error_message": "",
		}).Error
		if err != nil {
			return fmt.Errorf("workqueue: complete %s: %w", item.ID, err)
		}
		return nil
	}
	err := tx.Updates(map[string]any{
		"error_message": procErr.Error(),
		"retry_count":   gorm.Expr("retry_count + 1"),
	}).Error
	if err != nil {
		return fmt.Errorf("workqueue: fail %s: %w", item.ID, err)
	}
	return nil
}

// Pending reports how many unprocessed items queue holds.
func (q *GormQueue) Pending(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&WorkItem{}).
		Where("queue = ? AND processed_at IS NULL", queue).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("workqueue: count %s: %w", queue, err)
	}
	return n, nil
}
