package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims holds the JWT payload.
type Claims struct {
	AnalystID string `json:"analyst_id"`
	Use       string `json:"use"`
	jwt.RegisteredClaims
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewJWTManager creates a JWTManager with the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  15 * time.Minute,
		refreshExpiry: 7 * 24 * time.Hour,
	}
}

// WithAccessExpiry returns a copy of m issuing access tokens valid for d.
func (m *JWTManager) WithAccessExpiry(d time.Duration) *JWTManager {
	cp := *m
	cp.accessExpiry = d
	return &cp
}

func (m *JWTManager) sign(analystID, use string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		AnalystID: analystID,
		Use:       use,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   analystID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateAccessToken creates a short-lived access token for the given analyst.
func (m *JWTManager) GenerateAccessToken(analystID string) (string, error) {
	return m.sign(analystID, useAccess, m.accessExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (m *JWTManager) GenerateRefreshToken(analystID string) (string, error) {
	return m.sign(analystID, useRefresh, m.refreshExpiry)
}

// ValidateToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	return m.validate(tokenStr, useAccess)
}

// ValidateRefreshToken parses and validates a refresh token.
func (m *JWTManager) ValidateRefreshToken(tokenStr string) (*Claims, error) {
	return m.validate(tokenStr, useRefresh)
}

func (m *JWTManager) validate(tokenStr, use string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Use != use || claims.AnalystID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenPair holds an access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// GenerateTokenPair creates both tokens for an analyst.
func (m *JWTManager) GenerateTokenPair(analystID string) (*TokenPair, error) {
	access, err := m.GenerateAccessToken(analystID)
	if err != nil {
		return nil, err
	}
	refresh, err := m.GenerateRefreshToken(analystID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(m.accessExpiry.Seconds()),
	}, nil
}
