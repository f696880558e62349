package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

// TokenClaims is the JWT payload issued on sign-in.
type TokenClaims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// AuthService is the in-repo identity provider.
type AuthService interface {
	SignUp(ctx context.Context, payload dto.SignUpRequest) (dto.AuthResponse, error)
	SignIn(ctx context.Context, payload dto.SignInRequest) (dto.AuthResponse, error)
	SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error
	Me(ctx context.Context, userID string) (dto.UserResponse, error)
}

type authService struct {
	users      repository.UserRepository
	denylist   TokenDenylist
	validator  *validator.Validate
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAuthService constructs the identity provider.
func NewAuthService(users repository.UserRepository, denylist TokenDenylist, validate *validator.Validate, secret string, ttl time.Duration, logger zerolog.Logger) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{
		users:      users,
		denylist:   denylist,
		validator:  validate,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.With().Str("component", "auth_service").Logger(),
		now:        time.Now,
	}
}

func (s *authService) SignUp(ctx context.Context, payload dto.SignUpRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, invalidPayload(err)
	}

	role, ok := models.ParseRole(payload.Role)
	if !ok {
		return dto.AuthResponse{}, fmt.Errorf("unknown role %q: %w", payload.Role, ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), s.bcryptCost)
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(payload.Name),
		Email:        payload.Email,
		PasswordHash: string(hash),
		Role:         role,
	}

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return dto.AuthResponse{}, ErrEmailTaken
		}
		return dto.AuthResponse{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	return s.issue(user)
}

func (s *authService) SignIn(ctx context.Context, payload dto.SignInRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, invalidPayload(err)
	}

	user, err := s.users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *authService) SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("token id is required: %w", ErrValidation)
	}
	if s.denylist == nil {
		return errors.New("token denylist not configured")
	}
	return s.denylist.Revoke(ctx, tokenID, expiresAt)
}

func (s *authService) Me(ctx context.Context, userID string) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, notFoundOr(err, ErrUserNotFound)
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) issue(user models.User) (dto.AuthResponse, error) {
	token, expiresAt, err := IssueToken(s.secret, s.ttl, user, s.now())
	if err != nil {
		return dto.AuthResponse{}, err
	}
	return dto.AuthResponse{Token: token, ExpiresAt: expiresAt, User: dto.NewUserResponse(user)}, nil
}

// IssueToken signs an HS256 token for the user.
func IssueToken(secret []byte, ttl time.Duration, user models.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl).UTC()
	claims := TokenClaims{
		Role: string(user.Role),
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}
