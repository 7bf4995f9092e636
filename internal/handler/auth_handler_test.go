package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crm-service/internal/model"
	"crm-service/internal/repository"
	"crm-service/internal/store"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture(t *testing.T) (*AuthHandler, *jwtutil.JWTUtil) {
	t.Helper()
	repo := repository.New(store.NewMemStore(), zap.NewNop())
	jwt := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = repo.Users("tenant-a").Insert(context.Background(), model.User{
		ID: "user-1", TenantID: "tenant-a", Name: "Ada",
		Email: "ada@acme.test", PasswordHash: string(hash),
		Role: model.RoleManager, Status: model.UserActive,
	})
	require.NoError(t, err)
	_, err = repo.Users("tenant-a").Insert(context.Background(), model.User{
		ID: "user-2", TenantID: "tenant-a", Name: "Bob",
		Email: "bob@acme.test", PasswordHash: string(hash),
		Role: model.RoleCSR, Status: model.UserInactive,
	})
	require.NoError(t, err)

	return NewAuthHandler(repo, jwt), jwt
}

func login(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Login(e.NewContext(req, rec)))
	return rec
}

func TestLogin(t *testing.T) {
	h, jwt := newAuthFixture(t)

	rec := login(t, h, `{"tenant_id":"tenant-a","email":"ada@acme.test","password":"hunter2hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.User.PasswordHash)

	// The issued token carries the tenant and role the core will trust
	claims, err := jwt.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "manager", claims.Role)
}

func TestLogin_Rejections(t *testing.T) {
	h, _ := newAuthFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"wrong password", `{"tenant_id":"tenant-a","email":"ada@acme.test","password":"nope-nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"tenant_id":"tenant-a","email":"ghost@acme.test","password":"hunter2hunter2"}`, http.StatusUnauthorized},
		{"wrong tenant", `{"tenant_id":"tenant-b","email":"ada@acme.test","password":"hunter2hunter2"}`, http.StatusUnauthorized},
		{"inactive user", `{"tenant_id":"tenant-a","email":"bob@acme.test","password":"hunter2hunter2"}`, http.StatusUnauthorized},
		{"missing tenant", `{"email":"ada@acme.test","password":"hunter2hunter2"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := login(t, h, tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
