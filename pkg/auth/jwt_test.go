package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateParse_RoundTrip(t *testing.T) {
	t.Parallel()

	token, err := Generate(7, "alice", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := Parse(tok); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q) err=%v", tok, err)
		}
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	t.Parallel()

	token, err := Generate(1, "alice", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestParse_RejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	claims := Claims{
		UserID:   1,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("foreign issuer accepted: %v", err)
	}
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:   1,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("alg=none accepted: %v", err)
	}
}
