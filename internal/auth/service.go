package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/accessctl/internal"
	"github.com/frahmantamala/accessctl/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

// Service is the main auth service with dependencies
type Service struct {
	repo      RepositoryAPI
	tokens    TokenGeneratorAPI
	hasher    *BcryptHasher
	registrar Registrar
	accessTTL time.Duration
	logger    *slog.Logger
}

// NewService creates a new auth service
func NewService(repo RepositoryAPI, tokens *JWTTokenGenerator, hasher *BcryptHasher, registrar Registrar, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		registrar: registrar,
		accessTTL: tokens.AccessTokenTTL,
		logger:    logger,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return AuthTokens{}, appErr
	}

	creds, err := s.repo.GetCredentials(ctx, dto.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load credentials", "error", err)
		return AuthTokens{}, internal.NewInternalError("failed to authenticate", err)
	}
	if creds == nil || !s.hasher.Verify(creds.PasswordHash, dto.Password) {
		s.logger.InfoContext(ctx, "login rejected", "email", dto.Email)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !creds.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", creds.UserID)
	return s.issue(creds.UserID, creds.Email)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, dto RefreshTokenDTO) (AuthTokens, error) {
	if appErr := dto.Validate(); appErr != nil {
		return AuthTokens{}, appErr
	}

	claims, err := s.tokens.ValidateRefreshToken(dto.RefreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	p, err := s.Principal(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, err
	}

	return s.issue(p.ID, p.Email)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

// Principal loads the caller with its current role names. Inactive and
// deleted users are refused.
func (s *Service) Principal(ctx context.Context, userID int64) (*internal.Principal, error) {
	p, err := s.repo.GetPrincipal(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load principal", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if p == nil {
		return nil, internal.ErrInvalidToken
	}
	if !p.IsActive {
		return nil, internal.ErrUserInactive
	}
	return p, nil
}

func (s *Service) Register(ctx context.Context, dto user.RegisterDTO) (*user.User, error) {
	return s.registrar.Register(ctx, dto)
}

func (s *Service) issue(userID int64, email string) (AuthTokens, error) {
	access, err := s.tokens.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, email string) (string, error) {
	return j.sign(userID, email, TokenTypeAccess, j.AccessTokenTTL, j.AccessTokenSecret)
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64, email string) (string, error) {
	return j.sign(userID, email, TokenTypeRefresh, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return j.validate(tokenString, TokenTypeAccess, j.AccessTokenSecret)
}

func (j *JWTTokenGenerator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return j.validate(tokenString, TokenTypeRefresh, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) sign(userID int64, email, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (j *JWTTokenGenerator) validate(tokenString, tokenType string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.UserID <= 0 {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
