// Command token mints an HS256 bearer token for endpoints with auth_required.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	var secret string
	var sub string
	var ttl time.Duration
	flag.StringVar(&secret, "secret", os.Getenv("VT_AUTH__HMAC_SECRET"), "HS256 secret (defaults to $VT_AUTH__HMAC_SECRET)")
	flag.StringVar(&sub, "sub", "user_123", "subject claim")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if secret == "" {
		fmt.Fprintln(os.Stderr, "token: -secret is required")
		os.Exit(2)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	fmt.Println(s)
}
