package auth

import (
	"crm-service/internal/model"
	"crm-service/pkg/jwtutil"
)

// TenantClaims are the identity-provider-asserted claims the core trusts.
// Client-supplied tenant or role values are never consulted.
type TenantClaims struct {
	TenantID string
	Role     string
}

// IdentityProvider verifies a raw session token and yields the subject id and
// its tenant claims. Verification failures of any kind (bad signature, expiry,
// malformed token) are reported as an error.
type IdentityProvider interface {
	Verify(token string) (subjectID string, claims TenantClaims, err error)
}

// JWTIdentityProvider verifies tokens issued by pkg/jwtutil
type JWTIdentityProvider struct {
	jwt *jwtutil.JWTUtil
}

// NewJWTIdentityProvider wraps a JWT utility as an identity provider
func NewJWTIdentityProvider(jwt *jwtutil.JWTUtil) *JWTIdentityProvider {
	return &JWTIdentityProvider{jwt: jwt}
}

// Verify implements IdentityProvider
func (p *JWTIdentityProvider) Verify(token string) (string, TenantClaims, error) {
	claims, err := p.jwt.ValidateToken(token)
	if err != nil {
		return "", TenantClaims{}, err
	}
	return claims.UserID, TenantClaims{TenantID: claims.TenantID, Role: claims.Role}, nil
}

// Resolver turns a raw session token into a Principal. Resolution is
// idempotent and side-effect free; missing or incomplete claims resolve to an
// error, never to a default-permission principal.
type Resolver struct {
	idp IdentityProvider
}

// NewResolver creates a Resolver over an identity provider
func NewResolver(idp IdentityProvider) *Resolver {
	return &Resolver{idp: idp}
}

// Resolve verifies token and returns the Principal it asserts. Fail-closed:
// any verification failure, empty subject/tenant, or unknown role yields
// ErrUnauthenticated.
func (r *Resolver) Resolve(token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, model.ErrUnauthenticated
	}
	subject, claims, err := r.idp.Verify(token)
	if err != nil {
		return model.Principal{}, model.ErrUnauthenticated
	}
	if subject == "" || claims.TenantID == "" {
		return model.Principal{}, model.ErrUnauthenticated
	}
	role := model.Role(claims.Role)
	if !model.KnownRole(role) {
		return model.Principal{}, model.ErrUnauthenticated
	}
	return model.Principal{ID: subject, TenantID: claims.TenantID, Role: role}, nil
}
