package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"buzzhost/internal/config"
	"buzzhost/internal/model"
)

// AuthService handles authentication for hosts and players
type AuthService struct {
	hostUsername string
	hostPassword string
	jwtSecret    []byte
	now          func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		hostUsername: cfg.HostUsername,
		hostPassword: cfg.HostPassword,
		jwtSecret:    []byte(cfg.JWTSecret),
		now:          time.Now,
	}
}

// Login validates host credentials and returns a signed token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if username != s.hostUsername || password != s.hostPassword {
		return nil, fmt.Errorf("invalid credentials")
	}

	now := s.now()
	claims := model.HostClaims{
		HostID: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &model.LoginResponse{Token: signed, HostID: username}, nil
}

// GeneratePlayerToken creates a token scoped to a single player in a room
func (s *AuthService) GeneratePlayerToken(roomID, playerID string) (string, error) {
	now := s.now()
	claims := model.PlayerClaims{
		RoomID:   roomID,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   playerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing player token: %w", err)
	}
	return signed, nil
}

// ValidateHostToken parses and validates a host token
func (s *AuthService) ValidateHostToken(tokenStr string) (*model.HostClaims, error) {
	claims := &model.HostClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.HostID == "" {
		return nil, fmt.Errorf("not a host token")
	}
	return claims, nil
}

// ValidatePlayerToken parses and validates a player token
func (s *AuthService) ValidatePlayerToken(tokenStr string) (*model.PlayerClaims, error) {
	claims := &model.PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.PlayerID == "" {
		return nil, fmt.Errorf("not a player token")
	}
	return claims, nil
}
