package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/audit/masking"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const unknownTarget = "unknown"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) AuditLog(ctx context.Context, schoolID snowflake.ID, entry auditdomain.Entry) error {
	return s.AuditLogTx(ctx, s.db, schoolID, entry)
}

func (s *Service) AuditLogTx(ctx context.Context, tx *gorm.DB, schoolID snowflake.ID, entry auditdomain.Entry) error {
	row, err := s.buildRow(ctx, schoolID, entry)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("school_id", schoolID.String()),
			zap.String("action", row.Action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// buildRow fills actor and client details from ctx when the entry leaves them
// empty and masks sensitive metadata.
func (s *Service) buildRow(ctx context.Context, schoolID snowflake.ID, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	if schoolID == 0 {
		return nil, auditdomain.ErrInvalidSchool
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = unknownTarget
	}

	actorType := strings.TrimSpace(entry.ActorType)
	actorID := entry.ActorID
	if ctxType, ctxID := obscontext.ActorFromContext(ctx); actorType == "" && ctxType != "" {
		actorType = ctxType
		if strings.TrimSpace(actorID) == "" {
			actorID = ctxID
		}
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	metadata := masking.Metadata(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	ip, userAgent := obscontext.ClientFromContext(ctx)

	return &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		SchoolID:   schoolID,
		ActorType:  actorType,
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(metadata),
		IPAddress:  optional(ip),
		UserAgent:  optional(userAgent),
		CreatedAt:  s.clock.Now().UTC(),
	}, nil
}

func (s *Service) List(ctx context.Context, schoolID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	var empty auditdomain.ListAuditLogResponse
	if schoolID == 0 {
		return empty, auditdomain.ErrInvalidSchool
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return empty, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return empty, err
	}

	limit := req.Pagination.Limit()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		SchoolID:   schoolID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return empty, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, encodeCursor)
	resp := auditdomain.ListAuditLogResponse{
		PageInfo:  *pageInfo,
		AuditLogs: make([]auditdomain.AuditLog, 0, len(items)),
	}
	for _, item := range items {
		if item != nil {
			resp.AuditLogs = append(resp.AuditLogs, *item)
		}
	}
	return resp, nil
}

// decodeCursor returns nil for an empty token.
func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(item *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        item.ID.String(),
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
