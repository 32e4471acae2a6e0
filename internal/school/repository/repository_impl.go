package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() schooldomain.Repository {
	return &repo{}
}

func ProvideSequences() schooldomain.Sequences {
	return &sequences{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, school *schooldomain.School) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO schools (id, name, code, currency, receipt_prefix, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		school.ID,
		school.Name,
		school.Code,
		school.Currency,
		school.ReceiptPrefix,
		school.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*schooldomain.School, error) {
	var school schooldomain.School
	err := db.WithContext(ctx).Where("id = ?", id).Take(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*schooldomain.School, error) {
	var school schooldomain.School
	err := db.WithContext(ctx).Where("code = ?", strings.TrimSpace(code)).Take(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

type sequences struct{}

func (s *sequences) Next(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, name string) (int64, error) {
	seed := schooldomain.SchoolCounter{SchoolID: schoolID, Name: name, Value: 0}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE school_counters SET value = value + 1 WHERE school_id = ? AND name = ?`,
		schoolID,
		name,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, errors.New("school counter missing after upsert")
	}

	var value int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT value FROM school_counters WHERE school_id = ? AND name = ?`,
		schoolID,
		name,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}
