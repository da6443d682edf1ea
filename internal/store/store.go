// Package store persists questionnaire profiles and generation logs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avbuyanov/postpilot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence surface the dialogue engine depends on.
// Save has upsert semantics: one row per chat id, last write wins.
type Store interface {
	Save(ctx context.Context, profile *models.ContentProfile) error
	Load(ctx context.Context, chatID string) (*models.ContentProfile, error)
	LogGeneration(ctx context.Context, entry *models.GenerationLog) error
}

// Error wraps a persistence failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// GormStore implements Store on a GORM connection.
type GormStore struct {
	db *gorm.DB
}

// New creates a GormStore.
func New(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &GormStore{db: db}, nil
}

// profileColumns are the columns overwritten on conflict. Everything except
// the primary key and CreatedAt.
var profileColumns = []string{
	"topic", "audience", "monetization", "product_details", "preferences",
	"style", "emotions", "examples", "content_plan",
	"repackage_audience", "repackage_tool", "repackage_result", "updated_at",
}

// Save upserts the profile row for profile.ChatID.
func (s *GormStore) Save(ctx context.Context, profile *models.ContentProfile) error {
	if profile.ChatID == "" {
		return &Error{Op: "save", Err: fmt.Errorf("chat id is empty")}
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns(profileColumns),
	}).Create(profile)
	if result.Error != nil {
		return &Error{Op: "save " + profile.ChatID, Err: result.Error}
	}
	return nil
}

// Load fetches the profile row for chatID. A missing row returns (nil, nil);
// only infrastructure failures produce an error.
func (s *GormStore) Load(ctx context.Context, chatID string) (*models.ContentProfile, error) {
	var profile models.ContentProfile
	result := s.db.WithContext(ctx).First(&profile, "chat_id = ?", chatID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &Error{Op: "load " + chatID, Err: result.Error}
	}
	return &profile, nil
}

// LogGeneration appends a generation log row.
func (s *GormStore) LogGeneration(ctx context.Context, entry *models.GenerationLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return &Error{Op: "log generation", Err: err}
	}
	return nil
}
