package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims for authenticated requests.
type Claims struct {
	PersonID string `json:"pid"`
	TeamID   string `json:"tid,omitempty"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager encapsulates JWT generation and validation.
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewManager creates a new JWT manager.
func NewManager(secret, issuer string, expiry time.Duration) (*Manager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if expiry <= 0 {
		expiry = time.Hour * 24
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "teamshots"
	}
	return &Manager{
		secret: []byte(trimmed),
		issuer: issuer,
		expiry: expiry,
	}, nil
}

// GenerateToken issues a signed JWT for the provided person.
func (m *Manager) GenerateToken(person *entity.DbPerson) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("jwt manager is nil")
	}
	if person == nil || strings.TrimSpace(person.ID) == "" {
		return "", time.Time{}, errors.New("invalid person for token generation")
	}
	now := time.Now().UTC()
	expiry := now.Add(m.expiry)

	claims := Claims{
		PersonID: person.ID,
		TeamID:   person.TeamID,
		Email:    person.Email,
		Role:     person.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   person.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// ParseToken validates the token and returns claims.
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	if m == nil {
		return nil, errors.New("jwt manager is nil")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
