package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ScopeInvoicesRead  = "invoices:read"
	ScopeInvoicesWrite = "invoices:write"
	ScopePaymentsWrite = "payments:write"
	ScopeAPIKeysManage = "api_keys:manage"
)

// AllScopes is granted to keys created without an explicit scope list.
var AllScopes = []string{ScopeInvoicesRead, ScopeInvoicesWrite, ScopePaymentsWrite, ScopeAPIKeysManage}

func ValidScope(scope string) bool {
	for _, s := range AllScopes {
		if s == scope {
			return true
		}
	}
	return false
}

type Service interface {
	List(ctx context.Context, schoolID snowflake.ID) ([]Response, error)
	Create(ctx context.Context, schoolID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	// Import stores a caller-supplied secret. It is a no-op when the secret already exists.
	Import(ctx context.Context, schoolID snowflake.ID, name, plain string) error
	Rotate(ctx context.Context, schoolID snowflake.ID, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, schoolID snowflake.ID, keyID string) error
	Authenticate(ctx context.Context, raw string) (*Principal, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, keyID string) (*APIKey, error)
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type CreateRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Scopes           []string   `json:"scopes"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

// Principal is the authenticated caller behind a request.
type Principal struct {
	SchoolID snowflake.ID
	KeyID    string
	Scopes   []string
}

func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

var (
	ErrInvalidSchool = errors.New("invalid_school")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidKeyID  = errors.New("invalid_key_id")
	ErrInvalidScope  = errors.New("invalid_scope")
	ErrNotFound      = errors.New("not_found")
	ErrUnauthorized  = errors.New("unauthorized")
)
