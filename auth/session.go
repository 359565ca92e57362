// Package auth turns raw credentials into verified session claims. Token
// issuance happens at the HTTP login/join routes and in the admin CLI; the
// websocket layer only ever consumes already-verified claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "kh_session"

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims is the verified identity bound to a connection.
type SessionClaims struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
	IsGuest  bool   `json:"is_guest"`
	// RoomId is empty for admins connecting without a room.
	RoomId string `json:"room_id,omitempty"`
}

// Sessions verifies and issues HMAC-signed session tokens with a
// server-held secret.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	return &Sessions{secret: []byte(secret), ttl: ttl}, nil
}

func (s *Sessions) Issue(claims SessionClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  claims.UserId,
		"username": claims.Username,
		"name":     claims.Name,
		"is_admin": claims.IsAdmin,
		"is_guest": claims.IsGuest,
		"room_id":  claims.RoomId,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Verify parses and validates a raw token. Any failure (bad signature,
// expiry, malformed claims) is an auth error; callers terminate the
// connection.
func (s *Sessions) Verify(raw string) (*SessionClaims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims := &SessionClaims{}
	claims.UserId, _ = mapClaims["user_id"].(string)
	claims.Username, _ = mapClaims["username"].(string)
	claims.Name, _ = mapClaims["name"].(string)
	claims.IsAdmin, _ = mapClaims["is_admin"].(bool)
	claims.IsGuest, _ = mapClaims["is_guest"].(bool)
	claims.RoomId, _ = mapClaims["room_id"].(string)
	if claims.UserId == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
