package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKeyRotationGracePeriod = 24 * time.Hour

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, schoolID snowflake.ID) ([]apikeydomain.Response, error) {
	if schoolID == 0 {
		return nil, apikeydomain.ErrInvalidSchool
	}

	items, err := s.repo.List(ctx, s.db, schoolID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, schoolID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if schoolID == 0 {
		return nil, apikeydomain.ErrInvalidSchool
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		return nil, err
	}

	key, plain, err := s.issue(ctx, s.db, issueParams{
		schoolID:  schoolID,
		name:      name,
		scopes:    scopes,
		expiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("api key created", zap.String("school_id", schoolID.String()), zap.String("key_id", key.KeyID))
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

// Import registers a pre-shared secret with every scope. Importing the same
// secret twice is a no-op.
func (s *Service) Import(ctx context.Context, schoolID snowflake.ID, name, plain string) error {
	if schoolID == 0 {
		return apikeydomain.ErrInvalidSchool
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return apikeydomain.ErrInvalidKeyID
	}
	hash := apikeydomain.HashSecret(plain)
	existing, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil || existing != nil {
		return err
	}
	_, _, err = s.issue(ctx, s.db, issueParams{
		schoolID: schoolID,
		name:     strings.TrimSpace(name),
		scopes:   pq.StringArray(apikeydomain.AllScopes),
		hash:     hash,
	})
	return err
}

// Rotate issues a successor with the same name and scopes. The old key keeps
// working for apiKeyRotationGracePeriod.
func (s *Service) Rotate(ctx context.Context, schoolID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		current, err := s.repo.FindByKeyID(ctx, tx, schoolID, keyID)
		if err != nil {
			return err
		}
		if current == nil || !current.Usable(now) {
			return apikeydomain.ErrNotFound
		}

		graceEnd := now.Add(apiKeyRotationGracePeriod)
		if current.ExpiresAt == nil || current.ExpiresAt.After(graceEnd) {
			current.ExpiresAt = &graceEnd
		}
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		next, plain, err := s.issue(ctx, tx, issueParams{
			schoolID:    schoolID,
			name:        current.Name,
			scopes:      current.Scopes,
			rotatedFrom: current.KeyID,
		})
		if err != nil {
			return err
		}
		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("api key rotated", zap.String("school_id", schoolID.String()),
		zap.String("key_id", keyID), zap.String("next_key_id", result.KeyID))
	return result, nil
}

type issueParams struct {
	schoolID    snowflake.ID
	name        string
	scopes      pq.StringArray
	expiresAt   *time.Time
	rotatedFrom string
	// hash is set when importing a known secret; otherwise a fresh one is generated.
	hash string
}

func (s *Service) issue(ctx context.Context, db *gorm.DB, p issueParams) (*apikeydomain.APIKey, string, error) {
	id := s.genID.Generate()
	now := s.clock.Now().UTC()
	key := &apikeydomain.APIKey{
		ID:        id,
		SchoolID:  p.schoolID,
		KeyID:     newKeyID(id),
		Name:      p.name,
		Scopes:    p.scopes,
		KeyHash:   p.hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: p.expiresAt,
	}
	if p.rotatedFrom != "" {
		rotatedFrom := p.rotatedFrom
		key.RotatedFromKeyID = &rotatedFrom
	}

	var plain string
	if key.KeyHash == "" {
		var err error
		plain, key.KeyHash, err = apikeydomain.NewSecret(key.KeyID)
		if err != nil {
			return nil, "", err
		}
	}
	if err := s.repo.Insert(ctx, db, key); err != nil {
		return nil, "", err
	}
	return key, plain, nil
}

func (s *Service) Revoke(ctx context.Context, schoolID snowflake.ID, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, schoolID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now().UTC()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	return s.repo.Update(ctx, s.db, key)
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apikeydomain.ErrUnauthorized
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashSecret(raw))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if key == nil || !key.Usable(now) {
		return nil, apikeydomain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to update api key last_used_at", zap.String("key_id", key.KeyID), zap.Error(err))
	}
	return &apikeydomain.Principal{
		SchoolID: key.SchoolID,
		KeyID:    key.KeyID,
		Scopes:   append([]string(nil), key.Scopes...),
	}, nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Scopes:           append([]string(nil), key.Scopes...),
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func normalizeScopes(scopes []string) (pq.StringArray, error) {
	if len(scopes) == 0 {
		return pq.StringArray(apikeydomain.AllScopes), nil
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make(pq.StringArray, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if !apikeydomain.ValidScope(scope) {
			return nil, fmt.Errorf("%w: %s", apikeydomain.ErrInvalidScope, scope)
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out, nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}
