package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "room_chat/pkg/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsGuest     bool      `json:"is_guest"`
	TokenType   string    `json:"token_type"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(userID uuid.UUID, displayName string, isGuest bool, secret, issuer string, ttl time.Duration) (string, error) {
	return generate(userID, displayName, isGuest, TokenTypeAccess, secret, issuer, ttl)
}

func GenerateRefreshToken(userID uuid.UUID, secret, issuer string, ttl time.Duration) (string, error) {
	return generate(userID, "", false, TokenTypeRefresh, secret, issuer, ttl)
}

func generate(userID uuid.UUID, displayName string, isGuest bool, tokenType, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		IsGuest:     isGuest,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken checks an access token.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, TokenTypeAccess)
}

func ValidateRefreshToken(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, TokenTypeRefresh)
}

func parse(tokenString, secret, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
