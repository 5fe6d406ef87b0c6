package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

const (
	tokenTypeAccess = "access"
	tokenTypeSocket = "socket"
)

type tokenClaims struct {
	UserID uint   `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthService manages member accounts and their tokens.
type AuthService struct {
	userRepo     repository.UserRepository
	jwtSecret    []byte
	jwtExpiry    time.Duration
	socketExpiry time.Duration
}

var _ TokenVerifier = (*AuthService)(nil)

// NewAuthService creates an AuthService. Non-positive expiries fall back to
// 24h for access tokens and 2m for socket tokens.
func NewAuthService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiry, socketExpiry time.Duration) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiry <= 0 {
		jwtExpiry = 24 * time.Hour
	}
	if socketExpiry <= 0 {
		socketExpiry = 2 * time.Minute
	}
	return &AuthService{
		userRepo:     userRepo,
		jwtSecret:    []byte(jwtSecretKey),
		jwtExpiry:    jwtExpiry,
		socketExpiry: socketExpiry,
	}, nil
}

// Register creates a member account.
func (s *AuthService) Register(ctx context.Context, email, nickname, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	nickname = strings.TrimSpace(nickname)
	logCtx := logrus.WithFields(logrus.Fields{"email": email, "nickname": nickname})

	if email == "" || nickname == "" || password == "" {
		return nil, fmt.Errorf("%w: email, nickname and password are required", ErrInvalidRequest)
	}

	_, err := s.userRepo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		logCtx.Warn("Registration failed: email already registered")
		return nil, ErrRegistrationFailed
	case !errors.Is(err, repository.ErrNotFound):
		logCtx.WithError(err).Error("Database error while checking email")
		return nil, ErrInternalServer
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	user := &domain.User{
		Email:    email,
		Nickname: nickname,
		Password: hashedPassword,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: email taken concurrently")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = ""
	return user, nil
}

// Login checks the password and returns an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	logCtx := logrus.WithField("email", email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Login attempt failed: user not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: error finding user")
		}
		return "", ErrAuthenticationFailed
	}

	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: invalid password")
		return "", ErrAuthenticationFailed
	}

	token, err := s.sign(user.ID, tokenTypeAccess, s.jwtExpiry)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return token, nil
}

// IssueSocketToken mints the short-lived credential used to bind a realtime
// connection.
func (s *AuthService) IssueSocketToken(userID uint) (string, error) {
	return s.sign(userID, tokenTypeSocket, s.socketExpiry)
}

func (s *AuthService) VerifyAccessToken(token string) (uint, error) {
	return s.verify(token, tokenTypeAccess)
}

func (s *AuthService) VerifySocketToken(token string) (uint, error) {
	return s.verify(token, tokenTypeSocket)
}

func (s *AuthService) sign(userID uint, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) verify(tokenStr, typ string) (uint, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("token validation failed: %w", err)
	}
	if claims.Type != typ {
		return 0, fmt.Errorf("token type %q, want %q", claims.Type, typ)
	}
	if claims.UserID == 0 {
		return 0, errors.New("token carries no user_id")
	}
	return claims.UserID, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
