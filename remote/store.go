// Package remote is the remote relational store: one PostgreSQL row per
// conversation per user, accessed through gorm.
package remote

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"game-companion/model"
)

// ErrNoUser is returned when the store was opened without a user id
var ErrNoUser = errors.New("remote store requires a user id")

// Store reads and writes the conversations of one user
type Store struct {
	db     *gorm.DB
	userID string
}

// New connects to PostgreSQL and migrates the conversations table
func New(dsn, userID string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	s, err := NewWithDB(db, userID)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ConversationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate remote store: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing gorm handle
func NewWithDB(db *gorm.DB, userID string) (*Store, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	return &Store{db: db, userID: userID}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadConversations returns every stored thread of the user
func (s *Store) LoadConversations(ctx context.Context) ([]model.Record, error) {
	var rows []ConversationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", s.userID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveConversation upserts one thread
func (s *Store) SaveConversation(ctx context.Context, rec model.Record) error {
	row, err := toRow(s.userID, rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteConversation removes one thread; a missing row is not an error
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", s.userID, id).
		Delete(&ConversationRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}
