package repository

import (
	"context"
	"strings"

	"github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one entry. Audit rows are never updated; the caller picks
// the handle so an entry can commit with the mutation it describes.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns up to Limit+1 rows newest first so the caller can tell
// whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(bySchool(filter), byFields(filter), byWindow(filter), afterCursor(filter)).
		Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func bySchool(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("school_id = ?", f.SchoolID)
	}
}

func byFields(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		for column, value := range map[string]string{
			"action":      f.Action,
			"target_type": f.TargetType,
			"target_id":   f.TargetID,
			"actor_type":  f.ActorType,
		} {
			if value = strings.TrimSpace(value); value != "" {
				tx = tx.Where(column+" = ?", value)
			}
		}
		return tx
	}
}

func byWindow(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if f.StartAt != nil {
			tx = tx.Where("created_at >= ?", f.StartAt.UTC())
		}
		if f.EndAt != nil {
			tx = tx.Where("created_at <= ?", f.EndAt.UTC())
		}
		return tx
	}
}

func afterCursor(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if f.Cursor == nil {
			return tx
		}
		return tx.Where("created_at < ? OR (created_at = ? AND id < ?)",
			f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
}
