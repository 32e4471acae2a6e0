package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  schooldomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  schooldomain.Repository
	clock clock.Clock
}

func NewService(p Params) schooldomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("school.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// Ensure returns the school with the given code, creating it when absent.
func (s *Service) Ensure(ctx context.Context, req schooldomain.EnsureRequest) (*schooldomain.School, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, schooldomain.ErrInvalidName
	}
	code := slug.Make(strings.TrimSpace(req.Code))
	if code == "" {
		code = slug.Make(name)
	}
	if code == "" {
		return nil, schooldomain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, schooldomain.ErrInvalidCurrency
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	school := &schooldomain.School{
		ID:            s.genID.Generate(),
		Name:          name,
		Code:          code,
		Currency:      currency,
		ReceiptPrefix: ReceiptPrefix(code),
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, school); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindByCode(ctx, s.db, code)
		}
		return nil, fmt.Errorf("insert school: %w", err)
	}

	s.log.Info("school created", zap.String("school_id", school.ID.String()), zap.String("code", code))
	return school, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*schooldomain.School, error) {
	school, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, schooldomain.ErrSchoolNotFound
	}
	return school, nil
}

// ReceiptPrefix derives an upper-case receipt prefix from a school code,
// e.g. "green-valley-high" becomes "GVH".
func ReceiptPrefix(code string) string {
	parts := strings.Split(slug.Make(code), "-")
	if len(parts) == 1 {
		p := parts[0]
		if len(p) > 4 {
			p = p[:4]
		}
		return strings.ToUpper(p)
	}
	var b strings.Builder
	for _, part := range parts {
		if part != "" {
			b.WriteByte(part[0])
		}
	}
	return strings.ToUpper(b.String())
}
