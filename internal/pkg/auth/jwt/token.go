package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// SessionExpiration is the lifetime of a session token issued by the test backend: one week.
	SessionExpiration = 7 * 24 * time.Hour

	// TokenIssuer identifies the issuer of tokens minted in this repository.
	TokenIssuer = "chatsync"
)

// ErrMalformedToken is returned when a token cannot be decoded at all.
var ErrMalformedToken = errors.New("malformed token")

// GenerateToken creates and signs a new HS256 token for userID.
func GenerateToken(userID string, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload := &Payload{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(duration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates the token string using secretKey.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}

// Inspect decodes the claims of tokenString without verifying its signature.
// The client has no signing key; it only uses the claims to skip a round trip
// for tokens that are already expired.
func Inspect(tokenString string) (*Payload, error) {
	claims := &Payload{}

	parser := &jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}

	return claims, nil
}
