package auth

import (
	"context"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Credentials is what login needs from storage.
type Credentials struct {
	UserID       int64
	Email        string
	PasswordHash string
	IsActive     bool
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims carries identity only. Roles are loaded per request so a role
// change applies to the next request, not the next login.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenGeneratorAPI interface {
	GenerateAccessToken(userID int64, email string) (string, error)
	GenerateRefreshToken(userID int64, email string) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type RepositoryAPI interface {
	// GetCredentials and GetPrincipal return nil, nil for unknown users.
	GetCredentials(ctx context.Context, email string) (*Credentials, error)
	GetPrincipal(ctx context.Context, userID int64) (*internal.Principal, error)
}

// Registrar creates self-registered users.
type Registrar interface {
	Register(ctx context.Context, dto user.RegisterDTO) (*user.User, error)
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, dto RefreshTokenDTO) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	Principal(ctx context.Context, userID int64) (*internal.Principal, error)
	Register(ctx context.Context, dto user.RegisterDTO) (*user.User, error)
}
