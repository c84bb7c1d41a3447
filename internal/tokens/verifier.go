package tokens

import (
	"context"
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/pkg/middleware"
)

type mapToken struct {
	claims jwt.MapClaims
}

func (t *mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verifier verifies locally-issued access tokens for the auth middleware.
type Verifier struct {
	cfg *config.Config
}

func NewVerifier(cfg *config.Config) *Verifier { return &Verifier{cfg: cfg} }

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims, err := ParseAccessToken(v.cfg, raw)
	if err != nil {
		return nil, err
	}
	return &mapToken{claims: claims}, nil
}
