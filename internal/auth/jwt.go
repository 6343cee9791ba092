package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/anthem-hub-go/internal/config"
)

const (
	tokenIssuer   = "anthem-hub"
	tokenAudience = "anthem-hub-client"
)

// TokenType describes access vs refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Scope is what a client may do with the receivers it is granted.
type Scope string

const (
	// ScopeMonitor reads state and streams events.
	ScopeMonitor Scope = "monitor"
	// ScopeControl also sends commands and forces reconnects.
	ScopeControl Scope = "control"
)

// ParseScope accepts "monitor" or "control". Empty means control.
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case "", ScopeControl:
		return ScopeControl, nil
	case ScopeMonitor:
		return ScopeMonitor, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
}

// TokenPayload is what a token grants. An empty Receivers list grants
// every configured receiver.
type TokenPayload struct {
	Sub        string
	ClientName string
	Type       TokenType
	Scope      Scope
	Receivers  []string
}

// TokenPair is returned when minting tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
	ErrInvalidScope = errors.New("invalid scope")
)

type tokenClaims struct {
	Client    string    `json:"client,omitempty"`
	Type      TokenType `json:"type"`
	Scope     Scope     `json:"scope"`
	Receivers []string  `json:"receivers,omitempty"`
	jwt.RegisteredClaims
}

// GenerateTokenPair mints an access and a refresh token carrying the same
// grant.
func GenerateTokenPair(cfg config.Config, payload TokenPayload) (TokenPair, error) {
	scope, err := ParseScope(string(payload.Scope))
	if err != nil {
		return TokenPair{}, err
	}
	payload.Scope = scope
	if slices.Contains(payload.Receivers, "") {
		return TokenPair{}, errors.New("receiver ids must not be empty")
	}

	accessToken, err := signToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := signToken(cfg, payload, TokenTypeRefresh, cfg.JWTRefreshTokenExpirySec)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInSec: cfg.JWTAccessTokenExpirySec,
	}, nil
}

// RefreshAccessToken exchanges a refresh token for an access token with
// the same scope and receiver grant.
func RefreshAccessToken(cfg config.Config, refreshToken string) (string, int, error) {
	payload, err := VerifyToken(cfg, refreshToken)
	if err != nil {
		return "", 0, err
	}
	if payload.Type != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	accessToken, err := signToken(cfg, payload, TokenTypeAccess, cfg.JWTAccessTokenExpirySec)
	if err != nil {
		return "", 0, err
	}
	return accessToken, cfg.JWTAccessTokenExpirySec, nil
}

// VerifyToken parses and validates a token and returns its grant.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid || claims.Subject == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	if claims.Type != TokenTypeAccess && claims.Type != TokenTypeRefresh {
		return TokenPayload{}, ErrTokenInvalid
	}
	if claims.Scope != ScopeMonitor && claims.Scope != ScopeControl {
		return TokenPayload{}, ErrTokenInvalid
	}

	return TokenPayload{
		Sub:        claims.Subject,
		ClientName: claims.Client,
		Type:       claims.Type,
		Scope:      claims.Scope,
		Receivers:  claims.Receivers,
	}, nil
}

func signToken(cfg config.Config, payload TokenPayload, tokenType TokenType, expirySec int) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Client:    payload.ClientName,
		Type:      tokenType,
		Scope:     payload.Scope,
		Receivers: payload.Receivers,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Sub,
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expirySec) * time.Second)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}
