package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"room_chat/internal/config"
	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/jwt"
	"room_chat/pkg/logger"
)

const minPasswordLength = 8

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	// InitGuest creates an anonymous user and signs it in.
	InitGuest(ctx context.Context, name string) (*AuthResponse, error)
	// UpgradeGuest turns the calling guest into a registered user with the
	// same id, so its memberships carry over.
	UpgradeGuest(ctx context.Context, identity domain.Identity, in RegisterInput) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Validate(ctx context.Context, accessToken string) (domain.Identity, error)
	Me(ctx context.Context, identity domain.Identity) (*domain.User, error)
	Logout(ctx context.Context, refreshToken string) error
}

type RegisterInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type authService struct {
	repos  *repository.Repositories
	audit  AuditService
	jwtCfg config.JWTConfig
	clock  *Clock
	log    logger.Logger
}

func NewAuthService(repos *repository.Repositories, audit AuditService, jwtCfg config.JWTConfig, clock *Clock, log logger.Logger) AuthService {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &authService{
		repos:  repos,
		audit:  audit,
		jwtCfg: jwtCfg,
		clock:  clock,
		log:    log,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	email, hash, err := s.credentials(in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	name, err := normalizeDisplayName(in.Name, email[:strings.IndexByte(email, '@')])
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        &email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("User registered", "user_id", user.ID)
	return s.issue(ctx, user)
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

func (s *authService) InitGuest(ctx context.Context, name string) (*AuthResponse, error) {
	name, err := normalizeDisplayName(name, "Guest")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:          uuid.New(),
		Name:        name,
		IsAnonymous: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("Guest created", "user_id", user.ID)
	return s.issue(ctx, user)
}

func (s *authService) UpgradeGuest(ctx context.Context, identity domain.Identity, in RegisterInput) (*AuthResponse, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	email, hash, err := s.credentials(in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repos.User.GetByID(ctx, identity.ID)
		if err != nil {
			return err
		}
		if !user.IsAnonymous {
			return apperrors.Validation("user", "only guests can be upgraded")
		}

		if strings.TrimSpace(in.Name) != "" {
			name, err := normalizeDisplayName(in.Name, user.Name)
			if err != nil {
				return err
			}
			user.Name = name
		}
		user.Email = &email
		user.PasswordHash = hash
		user.IsAnonymous = false

		if err := s.repos.User.Update(ctx, user); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, nil, domain.EventTypeGuestUpgraded, nil)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Guest upgraded", "user_id", user.ID)
	return s.issue(ctx, user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.jwtCfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	session, err := s.repos.User.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !session.Usable(s.clock.Now()) || session.UserID != claims.UserID {
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.repos.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}

	// The old session goes first so a refresh token is never usable twice.
	if err := s.repos.User.RevokeSession(ctx, session.ID, "refreshed"); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// Validate checks the token and reloads the user, so a guest that upgraded
// since the token was issued is seen as registered.
func (s *authService) Validate(ctx context.Context, accessToken string) (domain.Identity, error) {
	claims, err := jwt.ValidateToken(accessToken, s.jwtCfg.AccessSecret)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := s.repos.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Identity{}, apperrors.ErrInvalidToken
		}
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

func (s *authService) Me(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return s.repos.User.GetByID(ctx, identity.ID)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.repos.User.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return err
	}
	return s.repos.User.RevokeSession(ctx, session.ID, "logout")
}

// credentials normalizes the email and hashes the password.
func (s *authService) credentials(email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", "", apperrors.Validation("email", "is required")
	}
	if len(email) > 255 {
		return "", "", apperrors.Validation("email", "is too long")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return "", "", apperrors.Validation("email", "is not a valid address")
	}
	if len(password) < minPasswordLength {
		return "", "", apperrors.Validation("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("Failed to hash password", "error", err)
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return email, string(hash), nil
}

func (s *authService) issue(ctx context.Context, user *domain.User) (*AuthResponse, error) {
	accessToken, err := jwt.GenerateAccessToken(user.ID, user.Name, user.IsAnonymous, s.jwtCfg.AccessSecret, s.jwtCfg.Issuer, s.jwtCfg.AccessTTL)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, err
	}
	refreshToken, err := jwt.GenerateRefreshToken(user.ID, s.jwtCfg.RefreshSecret, s.jwtCfg.Issuer, s.jwtCfg.RefreshTTL)
	if err != nil {
		s.log.Error("Failed to generate refresh token", "error", err)
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refreshToken),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.jwtCfg.RefreshTTL),
	}
	if err := s.repos.User.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	out := *user
	out.PasswordHash = ""
	return &AuthResponse{User: &out, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func normalizeDisplayName(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if utf8.RuneCountInString(name) > domain.MaxDisplayNameLength {
		return "", apperrors.Validation("name", fmt.Sprintf("must be at most %d characters", domain.MaxDisplayNameLength))
	}
	return name, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
