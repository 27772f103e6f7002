// Package token signs and verifies HS256 bearer tokens carrying identity,
// role, and the duress flag.
package token

import (
	"errors"
	"time"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims issued at login. Duress is carried so every
// downstream authorization decision can consult it without extra lookups.
type Claims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Role   string `json:"role"`
	Duress bool   `json:"duress"`
}

// Sign issues an HS256 token for the user with the given TTL.
func Sign(key []byte, u *model.User, role string, duress bool, ttl time.Duration) (model.Token, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:  u.Email,
		Role:   role,
		Duress: duress,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return model.Token{}, err
	}
	return model.Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse verifies an HS256 token and returns the session it carries.
func Parse(key []byte, raw string) (*model.Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return nil, errors.New("token expired or not valid yet")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, errors.New("bad subject")
	}
	return &model.Session{
		UserID: id,
		Email:  claims.Email,
		Role:   claims.Role,
		Duress: claims.Duress,
	}, nil
}
