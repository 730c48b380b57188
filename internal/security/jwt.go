package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrUnexpectedTokenType = errors.New("unexpected token type")

type Claims struct {
	Session   string `json:"session"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// Sign mints a token of the given type bound to sessionToken. Access and refresh tokens minted for
// the same session differ only in type, jti and expiry.
func (m *JWTManager) Sign(tokenType, sessionToken, userID, email string, ttl time.Duration) (string, *Claims, error) {
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return "", nil, fmt.Errorf("%w: %s", ErrUnexpectedTokenType, tokenType)
	}
	now := m.now()
	claims := &Claims{
		Session:   sessionToken,
		UserID:    userID,
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (m *JWTManager) SignAccessToken(sessionToken, userID, email string, ttl time.Duration) (string, *Claims, error) {
	return m.Sign(TokenTypeAccess, sessionToken, userID, email, ttl)
}

func (m *JWTManager) SignRefreshToken(sessionToken, userID, email string, ttl time.Duration) (string, *Claims, error) {
	return m.Sign(TokenTypeRefresh, sessionToken, userID, email, ttl)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.Parse(raw, TokenTypeAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.Parse(raw, TokenTypeRefresh)
}

// Parse checks signature, algorithm, issuer, audience and expiry, then the token type.
func (m *JWTManager) Parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedTokenType, claims.TokenType)
	}
	if claims.Session == "" || claims.UserID == "" {
		return nil, errors.New("token is missing session claims")
	}
	return claims, nil
}
