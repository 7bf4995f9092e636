package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"crm-service/internal/authz"
	"crm-service/internal/model"
	"crm-service/internal/repository"
	"crm-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const casAttempts = 3

// Manager owns staff/volunteer account administration within a tenant
type Manager struct {
	repo *repository.Repository
	log  *zap.Logger
}

// NewManager creates a user manager
func NewManager(repo *repository.Repository, log *zap.Logger) *Manager {
	return &Manager{repo: repo, log: log}
}

// CreateInput is the draft for a new staff/volunteer account
type CreateInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Create adds an account to the principal's tenant
func (m *Manager) Create(ctx context.Context, p model.Principal, in CreateInput) (*model.User, error) {
	if !authz.Can(p, authz.ManageUsers, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.Validation("name", "is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, model.Validation("email", "is required")
	}
	if len(in.Password) < 8 {
		return nil, model.Validation("password", "must be at least 8 characters")
	}
	if !model.KnownRole(in.Role) {
		return nil, model.Validation("role", "is not a valid role")
	}

	users := m.repo.Users(p.TenantID)
	if _, err := users.FindByEmail(ctx, in.Email); err == nil {
		return nil, model.Validation("email", "is already in use")
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := model.User{
		ID:           uuid.New().String(),
		TenantID:     p.TenantID,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		Role:         in.Role,
		Status:       model.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := users.Insert(ctx, account)
	if err != nil {
		return nil, err
	}
	m.log.Info("User created",
		zap.String("tenant_id", p.TenantID),
		zap.String("user_id", created.ID),
		zap.String("role", string(created.Role)))
	created = created.Sanitized()
	return &created, nil
}

// ChangeRole updates an account's role. Only admins hold ManageUsers, which
// keeps role changes admin-only.
func (m *Manager) ChangeRole(ctx context.Context, p model.Principal, userID string, role model.Role) (*model.User, error) {
	if !authz.Can(p, authz.ManageUsers, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	if !model.KnownRole(role) {
		return nil, model.Validation("role", "is not a valid role")
	}

	users := m.repo.Users(p.TenantID)
	for attempt := 0; attempt < casAttempts; attempt++ {
		account, revision, err := users.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		account.Role = role
		account.UpdatedAt = time.Now().UTC()
		updated, _, err := users.Update(ctx, account, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		m.log.Info("User role changed",
			zap.String("tenant_id", p.TenantID),
			zap.String("user_id", userID),
			zap.String("role", string(role)))
		updated = updated.Sanitized()
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// Deactivate marks an account inactive without removing it
func (m *Manager) Deactivate(ctx context.Context, p model.Principal, userID string) (*model.User, error) {
	if !authz.Can(p, authz.ManageUsers, authz.Resource{}) {
		return nil, model.ErrForbidden
	}
	users := m.repo.Users(p.TenantID)
	for attempt := 0; attempt < casAttempts; attempt++ {
		account, revision, err := users.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		account.Status = model.UserInactive
		account.UpdatedAt = time.Now().UTC()
		updated, _, err := users.Update(ctx, account, revision)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		m.log.Info("User deactivated",
			zap.String("tenant_id", p.TenantID),
			zap.String("user_id", userID))
		updated = updated.Sanitized()
		return &updated, nil
	}
	return nil, model.ErrStoreUnavailable
}

// List returns one page of the tenant's accounts
func (m *Manager) List(ctx context.Context, p model.Principal, q store.Query) ([]model.User, string, error) {
	if !authz.Can(p, authz.ManageUsers, authz.Resource{}) {
		return nil, "", model.ErrForbidden
	}
	accounts, cursor, err := m.repo.Users(p.TenantID).Page(ctx, q)
	if err != nil {
		return nil, "", err
	}
	for i := range accounts {
		accounts[i] = accounts[i].Sanitized()
	}
	return accounts, cursor, nil
}
