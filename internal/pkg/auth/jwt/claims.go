package jwt

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// Payload defines the claims carried by a session token.
// The backend owns issuance; the client only reads these fields.
type Payload struct {
	// StandardClaims carries exp/iat/iss at the top level of the claim set.
	jwt.StandardClaims

	// UserID identifies the account the token was issued for.
	UserID string `json:"user_id"`
}

// Expiry returns the expiry instant, or the zero time when the token has no exp claim.
func (p *Payload) Expiry() time.Time {
	if p.StandardClaims.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(p.StandardClaims.ExpiresAt, 0)
}

// ExpiredAt reports whether the token is past its expiry at now.
// A token without an exp claim never expires locally.
func (p *Payload) ExpiredAt(now time.Time) bool {
	exp := p.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}
