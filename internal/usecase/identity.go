package usecase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront-backend/internal/domain"
)

// Identity signs and verifies the bearer tokens that identify callers.
type Identity struct {
	Secret string
	TTL    time.Duration
}

func (i *Identity) Token(u *domain.User) (string, error) {
	ttl := i.TTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"user_id": u.UserID,
		"email":   u.Email,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(i.Secret))
}

func (i *Identity) Verify(token string) (string, string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(i.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrUnauthorized("invalid token")
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrUnauthorized("invalid claims")
	}
	uid, _ := m["user_id"].(string)
	email, _ := m["email"].(string)
	if uid == "" {
		return "", "", ErrUnauthorized("invalid claims")
	}
	return uid, email, nil
}
