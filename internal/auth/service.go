package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
	"github.com/vovakirdan/securechat-server/internal/utils"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", core.ErrUnauthorized)
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("email already registered")
	// ErrInvalidInput is returned when registration fields fail validation.
	ErrInvalidInput = fmt.Errorf("%w: name, valid email and a password of at least 6 characters are required", core.ErrBadRequest)
)

const uidAttempts = 5

var validate = validator.New()

// RegisterInput holds registration fields.
type RegisterInput struct {
	Name     string `validate:"required,max=64"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// Session is the result of a successful register or login.
type Session struct {
	User  *store.User
	Token string
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with a hashed password and a fresh public uid.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, ErrInvalidInput
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hashedPassword, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &store.User{
		ID:           utils.NewID(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashedPassword,
		Status:       store.PresenceOffline,
		LastSeen:     now,
		CreatedAt:    now,
	}

	// Retry on the unlikely uid collision.
	for attempt := 0; ; attempt++ {
		user.UID = utils.NewUID()
		err = s.store.CreateUser(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		if _, lookupErr := s.store.GetUserByEmail(ctx, in.Email); lookupErr == nil {
			return nil, ErrUserExists
		}
		if attempt+1 >= uidAttempts {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	return s.session(user)
}

// Login validates credentials and returns a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) session(user *store.User) (*Session, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.UID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}
