package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeAdmin   = "admin"
)

// ErrWrongType is returned by ParseType when the token is valid but of another type.
var ErrWrongType = jwtlib.ErrTokenInvalidClaims

// Claims defines JWT payload.
type Claims struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	AdminID  int64  `json:"adminId,omitempty"`
	Username string `json:"username,omitempty"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed JWT with provided secret and ttl.
func GenerateToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwtlib.RegisteredClaims{
		Issuer:    "gamebackend",
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseType validates the token and requires its type claim to equal typ.
func ParseType(token, secret, typ string) (*Claims, error) {
	claims, err := Parse(token, secret)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, ErrWrongType
	}
	return claims, nil
}
