package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dailytracker/offline-agent/internal/notification"
)

// HistoryRepository stores and queries notification history.
type HistoryRepository interface {
	notification.HistoryStore

	// ListDisplayed returns the most recent displayed notifications, newest
	// first, at most limit rows.
	ListDisplayed(ctx context.Context, limit int) ([]NotificationRecord, error)
	// ListInteractions returns interactions for one notification.
	ListInteractions(ctx context.Context, notificationID string) ([]InteractionEvent, error)
	// DeleteBefore removes history rows older than cutoff, returning the
	// number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

type historyRepository struct {
	db *gorm.DB
}

// Open opens (creating and migrating if needed) the sqlite history database
// at path.
func Open(path string) (HistoryRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.AutoMigrate(&NotificationRecord{}, &InteractionEvent{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &historyRepository{db: db}, nil
}

// SaveDisplayed implements notification.HistoryStore.
func (r *historyRepository) SaveDisplayed(ctx context.Context, n *notification.Notification) error {
	record := &NotificationRecord{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Tag:            n.Tag,
		DisplayedAt:    n.Timestamp,
	}
	if n.Data != nil {
		record.ReminderID = n.Data.ReminderID
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save notification record: %w", err)
	}
	return nil
}

// SaveInteraction implements notification.HistoryStore.
func (r *historyRepository) SaveInteraction(ctx context.Context, notificationID, kind, action string) error {
	event := &InteractionEvent{
		NotificationID: notificationID,
		Kind:           kind,
		Action:         action,
		OccurredAt:     time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to save interaction event: %w", err)
	}
	return nil
}

func (r *historyRepository) ListDisplayed(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []NotificationRecord
	if err := r.db.WithContext(ctx).Order("displayed_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification records: %w", err)
	}
	return records, nil
}

func (r *historyRepository) ListInteractions(ctx context.Context, notificationID string) ([]InteractionEvent, error) {
	var events []InteractionEvent
	if err := r.db.WithContext(ctx).Where("notification_id = ?", notificationID).
		Order("occurred_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list interaction events: %w", err)
	}
	return events, nil
}

func (r *historyRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	result := r.db.WithContext(ctx).Where("displayed_at < ?", cutoff).Delete(&NotificationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune notification records: %w", result.Error)
	}
	total += result.RowsAffected
	result = r.db.WithContext(ctx).Where("occurred_at < ?", cutoff).Delete(&InteractionEvent{})
	if result.Error != nil {
		return total, fmt.Errorf("failed to prune interaction events: %w", result.Error)
	}
	total += result.RowsAffected
	return total, nil
}

func (r *historyRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
