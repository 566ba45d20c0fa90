// Package auth issues and verifies the signed session tokens that bind a
// websocket connection to a stable player identity across reconnects.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var secret []byte

// Init sets the HMAC signing secret. Must be called before any token work.
func Init(s string) {
	secret = []byte(s)
}

// SessionClaims is the payload of a player session token.
type SessionClaims struct {
	PlayerName string `json:"playerName"`
	jwt.RegisteredClaims
}

// CreateSessionToken signs a token tying the player UUID to their display
// name. Tokens outlive any realistic game session.
func CreateSessionToken(playerID uuid.UUID, name string) (string, error) {
	claims := SessionClaims{
		PlayerName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseSessionToken verifies a token and returns the player identity it
// carries.
func ParseSessionToken(tokenStr string) (uuid.UUID, string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	if !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid session token")
	}
	playerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("malformed subject in session token: %w", err)
	}
	return playerID, claims.PlayerName, nil
}
