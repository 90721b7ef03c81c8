package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer is stamped into every token and required back on verify, so a
// token minted by some other HS256 service sharing the secret is still
// rejected here.
const issuer = "packwire"

// ErrInvalid covers every verification failure; callers get no hint
// about which check tripped.
var ErrInvalid = errors.New("invalid token")

// Claims is the token payload for admin sessions.
type Claims struct {
	UserID   uint   `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// signingKey reads JWT_SECRET on every call so a container restart with
// a rotated secret invalidates outstanding tokens without a rebuild.
func signingKey() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("change-me-secret")
}

// Generate mints an HS256 token for the given user, valid for ttl.
func Generate(userID uint, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey())
}

// Parse verifies signature, expiry, issuer and algorithm. Restricting
// the algorithm closes the alg-substitution hole.
func Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return signingKey(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
