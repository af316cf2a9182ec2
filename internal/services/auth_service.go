package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"village_market/internal/models"
	"village_market/internal/redis"
	"village_market/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type RegisterInput struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FullName    string `json:"full_name" binding:"required"`
	PhoneNumber string `json:"phone_number"`
}

// Claims carries the user id in the standard subject claim.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	IssueToken(user *models.User) (string, error)
	ResolveSession(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, session *models.Session) error
	CurrentUser(ctx context.Context, session *models.Session) (*models.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	sessions SessionStore
	secret   []byte
	tokenTTL time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, sessions SessionStore, secret string, tokenTTL, cacheTTL time.Duration) AuthService {
	return &authService{
		userRepo: userRepo,
		sessions: sessions,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if len(input.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}

	count, err := s.userRepo.CountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		FullName:     strings.TrimSpace(input.FullName),
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		Role:         string(models.Customer),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *authService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ResolveSession verifies token and loads the caller's current role. The
// role comes from the user record (cached in redis), not from the token, so
// demoting a user takes effect before the token expires.
func (s *authService) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	if s.sessions != nil {
		cached, err := s.sessions.GetSession(ctx, claims.Subject)
		if err == nil {
			return &models.Session{UserID: cached.UserID, Email: cached.Email, Role: models.UserRole(cached.Role)}, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("Warning: session cache read failed: %v", err)
		}
	}

	user, err := s.userRepo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}

	session := &models.Session{UserID: user.ID, Email: user.Email, Role: models.UserRole(user.Role)}
	if s.sessions != nil {
		data := &redis.SessionData{UserID: user.ID, Email: user.Email, Role: user.Role, CreatedAt: s.now()}
		if err := s.sessions.SetSession(ctx, user.ID, data, s.cacheTTL); err != nil {
			log.Printf("Warning: session cache write failed: %v", err)
		}
	}
	return session, nil
}

func (s *authService) Logout(ctx context.Context, session *models.Session) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	return s.sessions.DeleteSession(ctx, session.UserID)
}

func (s *authService) CurrentUser(ctx context.Context, session *models.Session) (*models.User, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}
