// Package auth implements the claims resolver for bearer credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbergstrom/chatrelay/internal/domain"
)

// Resolver validates HS256-signed bearer tokens and yields the caller
// identity. Token issuance happens in the account service; this side only
// verifies.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

var _ domain.ClaimsResolver = (*Resolver)(nil)

// Resolve validates the credential and returns its claims. Expired or
// malformed tokens resolve to domain.ErrExpiredCredential and
// domain.ErrInvalidCredential respectively.
func (r *Resolver) Resolve(credential string) (domain.Claims, error) {
	if credential == "" {
		return domain.Claims{}, domain.ErrInvalidCredential
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Claims{}, domain.ErrExpiredCredential
		}
		return domain.Claims{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Claims{}, domain.ErrInvalidCredential
	}

	userID, _ := mapClaims["id"].(string)
	if userID == "" {
		return domain.Claims{}, fmt.Errorf("%w: missing id claim", domain.ErrInvalidCredential)
	}

	claims := domain.Claims{
		UserID:   userID,
		Email:    stringClaim(mapClaims, "email"),
		Forename: stringClaim(mapClaims, "forename"),
		Surname:  stringClaim(mapClaims, "surname"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

// Sign creates a signed token for the given claims, used by tests and local
// tooling.
func Sign(secret string, claims domain.Claims, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       claims.UserID,
		"email":    claims.Email,
		"forename": claims.Forename,
		"surname":  claims.Surname,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
