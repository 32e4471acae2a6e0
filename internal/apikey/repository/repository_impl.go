package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

// Update writes the mutable columns only. The hash and lineage of a key never change.
func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Scopes(ownedBy(key.SchoolID)).
		Where("key_id = ?", key.KeyID).
		Updates(map[string]any{
			"name":       key.Name,
			"scopes":     key.Scopes,
			"is_active":  key.IsActive,
			"updated_at": key.UpdatedAt,
			"expires_at": key.ExpiresAt,
		}).Error
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, keyID string) (*apikeydomain.APIKey, error) {
	return first(db.WithContext(ctx).Scopes(ownedBy(schoolID)).Where("key_id = ?", keyID))
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*apikeydomain.APIKey, error) {
	return first(db.WithContext(ctx).Where("key_hash = ?", hash))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).
		Scopes(ownedBy(schoolID)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&keys).Error
	return keys, err
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

func ownedBy(schoolID snowflake.ID) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("school_id = ?", schoolID)
	}
}

// first returns nil without error when nothing matches.
func first(tx *gorm.DB) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := tx.Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}
