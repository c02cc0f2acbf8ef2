package remote

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccountIDFromToken extracts the subject claim from a backend access token.
// The signature is not verified: the backend verifies it on every request,
// this only reads the account the token was issued for.
func AccountIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read access token subject: %w", err)
	}
	if sub == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return sub, nil
}
