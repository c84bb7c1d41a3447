package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/internal/identity"
)

// GenerateAccessToken creates a signed JWT access token for the account
func GenerateAccessToken(cfg *config.Config, acct *identity.Account, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   acct.UID,
		"name":  acct.DisplayName,
		"photo": acct.PhotoURL,
		"email": acct.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.Identity.JWTSecret))
}

// ParseAccessToken validates the signature and expiry and returns the claims.
func ParseAccessToken(cfg *config.Config, raw string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Identity.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
