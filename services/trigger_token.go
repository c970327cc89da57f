package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const triggerIssuer = "jobpilot"

// TriggerClaims identify the caller of the HTTP trigger.
type TriggerClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TriggerTokens mints and checks the HS256 bearer tokens that guard the
// HTTP trigger.
type TriggerTokens struct {
	secret []byte
}

func NewTriggerTokens(secret string) (*TriggerTokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("trigger secret must be at least 16 bytes")
	}
	return &TriggerTokens{secret: []byte(secret)}, nil
}

// Issue returns a token for subject, valid for ttl.
func (t *TriggerTokens) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TriggerClaims{
		Scope: "run",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    triggerIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses token and checks signature, expiry, issuer and scope.
func (t *TriggerTokens) Validate(token string) (*TriggerClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TriggerClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(triggerIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*TriggerClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Scope != "run" {
		return nil, fmt.Errorf("token scope %q cannot trigger runs", claims.Scope)
	}
	return claims, nil
}
