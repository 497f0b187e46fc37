package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrSessionMismatch = errors.New("token was issued for another session")
)

const defaultPeerTokenTTL = 12 * time.Hour

// PeerClaims admits one participant into one session on the relay
type PeerClaims struct {
	jwt.RegisteredClaims
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// JWTManager issues and verifies HS256 peer tokens
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTManager creates a token manager signing with secret
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		ttl:    defaultPeerTokenTTL,
		issuer: "watch-party-sync",
		now:    time.Now,
	}
}

// WithTTL returns a copy of the manager issuing tokens valid for ttl
func (m *JWTManager) WithTTL(ttl time.Duration) *JWTManager {
	cp := *m
	cp.ttl = ttl
	return &cp
}

// GenerateToken issues a token for participantID in sessionID
func (m *JWTManager) GenerateToken(sessionID, participantID, displayName string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &PeerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID:     sessionID,
		ParticipantID: participantID,
		DisplayName:   displayName,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign peer token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateToken verifies the signature and expiry and that the token belongs to sessionID
func (m *JWTManager) ValidateToken(tokenString, sessionID string) (*PeerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PeerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*PeerClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}
	if claims.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	return claims, nil
}
